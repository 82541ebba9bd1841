package outbox

const activitiesSyncedSchema = `{
  "type": "object",
  "title": "ActivitiesSynced",
  "properties": {
    "user_id": {"type": "string"},
    "count": {"type": "integer"},
    "external_ids": {"type": "array", "items": {"type": "string"}},
    "latest_start": {"type": "string", "format": "date-time"},
    "synced_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "count", "external_ids", "synced_at"],
  "additionalProperties": false
}`

const feedbackRecordedSchema = `{
  "type": "object",
  "title": "FeedbackRecorded",
  "properties": {
    "feedback_id": {"type": "string"},
    "user_id": {"type": "string"},
    "session_id": {"type": "string"},
    "session_date": {"type": "string", "format": "date-time"},
    "adherence": {"type": "string"},
    "sensation": {"type": "integer", "minimum": 1, "maximum": 10},
    "has_pain": {"type": "boolean"},
    "pain_area": {"type": "string"},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["feedback_id", "user_id", "session_id", "session_date", "sensation", "has_pain", "recorded_at"],
  "additionalProperties": false
}`
