package services

// workflowDocumentSchema validates workflow documents accepted by Import.
const workflowDocumentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "schedule": {"type": "string"},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["tool", "command"],
        "properties": {
          "id": {"type": "string"},
          "tool": {"type": "string", "minLength": 1},
          "command": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  }
}`
