package parser

// extractionPrompt is the fixed instruction sent ahead of the raw page
// content. It pins the output schema so the response can be decoded into
// MarketRecords with at most alias-level repair.
const extractionPrompt = `You are an expert data extraction assistant. Parse the provided markdown text from a prediction-market listing page into a single JSON object. Do not include any text outside the JSON object.

The root object must have one key "markets", an array containing two kinds of entries:

1. Grouped markets — when a heading is followed by related sub-markets, emit a group object:
{
  "group_title": "string",
  "markets": [
    {
      "market_title": "string",
      "market_type": "binary",
      "options": [ { "name": "Yes", "odds": 0.81 }, { "name": "No", "odds": 0.19 } ],
      "volume_24h": 12345.0
    }
  ]
}
The market_title of each grouped entry must be a full question combining the subject with the group title.

2. Standalone markets:
{
  "market_title": "string",
  "market_type": "binary" | "multi_option",
  "options": [ { "name": "string", "odds": 0.5 } ],
  "volume_24h": 12345.0,
  "category": "string (optional)",
  "end_date": "YYYY-MM-DD (optional)",
  "description": "string (optional)"
}

Rules for all markets:
- For binary markets the listed percentage is the "Yes" option; compute "No" as (100% - Yes%).
- Convert percentages to decimals (81% becomes 0.81). Treat "<1%" as 0.005.
- The odds of a market's options must sum to approximately 1.0.
- Report 24-hour volume as a plain number without currency symbols; use 0 when not shown.
- Omit optional fields you cannot find; never invent values.

Parse the following page content:

`
