package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPureJSON(t *testing.T) {
	got, err := Extract(`{"new_post": null}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"new_post": null}`, got)
}

func TestExtractFencedBlock(t *testing.T) {
	response := "Here's my plan:\n```json\n{\"upvotes\": []}\n```\nDone."
	got, err := Extract(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"upvotes": []}`, got)
}

func TestExtractPrefersLargestFencedBlock(t *testing.T) {
	response := "```json\n{\"a\": 1}\n```\nand the full plan:\n" +
		"```json\n{\"a\": 1, \"b\": 2, \"c\": 3}\n```"
	got, err := Extract(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1, "b": 2, "c": 3}`, got)
}

func TestExtractEmbeddedObject(t *testing.T) {
	response := `I decided the following {"feed_comments": [{"post_id": "p1"}]} based on the feed.`
	got, err := Extract(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"feed_comments": [{"post_id": "p1"}]}`, got)
}

func TestExtractNoJSON(t *testing.T) {
	_, err := Extract("I could not produce a plan this cycle.")
	require.Error(t, err)
}

func TestExtractRejectsArrays(t *testing.T) {
	_, err := Extract(`[1, 2, 3]`)
	require.Error(t, err)
}

func TestUnmarshal(t *testing.T) {
	var out struct {
		Follows []string `json:"follows"`
	}
	err := Unmarshal("```json\n{\"follows\": [\"alice\"]}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, out.Follows)
}

func TestUnmarshalTypeMismatch(t *testing.T) {
	var out struct {
		Follows []string `json:"follows"`
	}
	err := Unmarshal(`{"follows": "not-an-array"}`, &out)
	require.Error(t, err)
}
