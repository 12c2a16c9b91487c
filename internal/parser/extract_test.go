package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSON_FencedBlock(t *testing.T) {
	text := "Here is the data:\n```json\n{\"markets\": []}\n```\nLet me know if you need more."
	raw, err := extractJSON(text)
	require.NoError(t, err)
	require.JSONEq(t, `{"markets": []}`, string(raw))
}

func TestExtractJSON_BareFence(t *testing.T) {
	text := "```\n{\"markets\": [1, 2]}\n```"
	raw, err := extractJSON(text)
	require.NoError(t, err)
	require.JSONEq(t, `{"markets": [1, 2]}`, string(raw))
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	text := `Sure! The extracted object is {"markets": [{"market_title": "A {brace} title?"}]} as requested.`
	raw, err := extractJSON(text)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Contains(t, payload, "markets")
}

func TestExtractJSON_WholeResponse(t *testing.T) {
	raw, err := extractJSON(`  {"markets": []}  `)
	require.NoError(t, err)
	require.JSONEq(t, `{"markets": []}`, string(raw))
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := extractJSON("I could not find any markets on this page.")
	require.Error(t, err)
}

func TestDecodeRecords_Standalone(t *testing.T) {
	payload := `{
		"markets": [
			{
				"market_title": "Will BTC hit 100k?",
				"market_type": "binary",
				"options": [
					{"name": "Yes", "odds": 0.3},
					{"name": "No", "odds": 0.7}
				],
				"volume_24h": 5000,
				"category": "Crypto"
			}
		]
	}`

	records, err := decodeRecords(json.RawMessage(payload))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	require.Equal(t, "Will BTC hit 100k?", r.Title)
	require.Equal(t, []string{"Yes", "No"}, r.Outcomes)
	require.Equal(t, []float64{0.3, 0.7}, r.Prices)
	require.Equal(t, 5000.0, r.Volume24h)
	require.Equal(t, "Crypto", r.Category)
}

func TestDecodeRecords_GroupFlattening(t *testing.T) {
	payload := `{
		"markets": [
			{
				"group_title": "Election",
				"markets": [
					{"market_title": "Will A win the Election?", "options": [{"name": "Yes", "odds": 0.8}, {"name": "No", "odds": 0.2}]},
					{"market_title": "Will B win the Election?", "options": [{"name": "Yes", "odds": 0.2}, {"name": "No", "odds": 0.8}]}
				]
			}
		]
	}`

	records, err := decodeRecords(json.RawMessage(payload))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "Election", records[0].GroupTitle)
	require.Equal(t, "Election", records[1].GroupTitle)
}

func TestDecodeRecords_AliasRepair(t *testing.T) {
	// Near-miss key names: Title/question casing, outcome/price variants,
	// stringy numbers.
	payload := `{
		"Markets": [
			{
				"question": "Will it rain tomorrow?",
				"outcomes": [
					{"outcome": "Yes", "probability": "60%"},
					{"outcome": "No", "price": 0.4}
				],
				"Volume": "$1,250.50",
				"endDate": "2026-09-17"
			}
		]
	}`

	records, err := decodeRecords(json.RawMessage(payload))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	require.Equal(t, "Will it rain tomorrow?", r.Title)
	require.Equal(t, []string{"Yes", "No"}, r.Outcomes)
	require.InDelta(t, 0.6, r.Prices[0], 1e-9)
	require.InDelta(t, 0.4, r.Prices[1], 1e-9)
	require.Equal(t, 1250.50, r.Volume24h)
	require.NotNil(t, r.EndDate)
	require.Equal(t, "2026-09-17", r.EndDate.Format("2006-01-02"))
}

func TestDecodeRecords_ParallelArrays(t *testing.T) {
	payload := `{
		"markets": [
			{
				"title": "Parallel arrays",
				"outcomes": ["Up", "Down"],
				"current_prices": [0.55, 0.45]
			}
		]
	}`

	records, err := decodeRecords(json.RawMessage(payload))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, []string{"Up", "Down"}, records[0].Outcomes)
	require.Equal(t, []float64{0.55, 0.45}, records[0].Prices)
}

func TestDecodeRecords_PercentageRepair(t *testing.T) {
	payload := `{
		"markets": [
			{
				"market_title": "Percent odds",
				"options": [{"name": "Yes", "odds": 81}, {"name": "No", "odds": 19}]
			}
		]
	}`

	records, err := decodeRecords(json.RawMessage(payload))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.InDelta(t, 0.81, records[0].Prices[0], 1e-9)
	require.InDelta(t, 0.19, records[0].Prices[1], 1e-9)
}

func TestDecodeRecords_BadShape(t *testing.T) {
	_, err := decodeRecords(json.RawMessage(`{"events": []}`))
	require.Error(t, err)

	_, err = decodeRecords(json.RawMessage(`{"markets": "nope"}`))
	require.Error(t, err)

	_, err = decodeRecords(json.RawMessage(`42`))
	require.Error(t, err)
}

func TestDecodeRecords_TopLevelArray(t *testing.T) {
	payload := `[{"market_title": "Bare array", "options": [{"name": "Yes", "odds": 0.5}, {"name": "No", "odds": 0.5}]}]`
	records, err := decodeRecords(json.RawMessage(payload))
	require.NoError(t, err)
	require.Len(t, records, 1)
}
