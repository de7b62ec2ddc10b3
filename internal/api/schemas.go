package api

const postEntrySchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["lines"],
  "properties": {
    "occurred_at": {"type": "string", "format": "date-time"},
    "description": {"type": "string", "maxLength": 500},
    "lines": {
      "type": "array",
      "minItems": 2,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["account_code", "side", "amount"],
        "properties": {
          "account_code": {"type": "string", "minLength": 1, "maxLength": 20},
          "side": {"type": "string", "enum": ["debit", "credit"]},
          "amount": {"type": "number", "exclusiveMinimum": 0},
          "memo": {"type": "string", "maxLength": 255}
        }
      }
    }
  }
}`

const posTransactionSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["id", "gross"],
  "properties": {
    "id": {"type": "string", "minLength": 1, "maxLength": 100},
    "gross": {"type": "number", "exclusiveMinimum": 0},
    "tax": {"type": "number", "minimum": 0},
    "tip": {"type": "number", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  }
}`

const startCountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["product_id"],
  "properties": {
    "product_id": {"type": "string", "minLength": 1, "maxLength": 100}
  }
}`

const submitCountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["quantity"],
  "properties": {
    "quantity": {"type": "integer", "minimum": 0}
  }
}`
