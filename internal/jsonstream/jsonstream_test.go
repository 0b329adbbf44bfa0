package jsonstream_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paleoapi/compositegw/internal/jsonstream"
)

const pbdbBody = `{"records":[{"oid":1,"nam":"Canis"},{"oid":2,"nam":"Felis"}],"status_code":200,"warnings":["slow query"]}`

func TestFeedWholeDocument(t *testing.T) {
	ex := jsonstream.New("/records/^", "/status_code", "/warnings", "/errors")
	got, err := ex.Feed([]byte(pbdbBody))
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, "/records/^", got[0].Path)
	require.Equal(t, "/records/^", got[1].Path)
	require.Equal(t, "/status_code", got[2].Path)
	require.Equal(t, float64(200), got[2].Value)
	require.Equal(t, "/warnings", got[3].Path)
	require.Equal(t, []any{"slow query"}, got[3].Value)
}

func TestFeedAcrossChunkBoundaries(t *testing.T) {
	ex := jsonstream.New("/data/^", "/success", "/message")
	body := `{"success":true,"data":[{"id":1},{"id":2}],"message":"ok"}`
	var all []jsonstream.Extracted
	for i := 0; i < len(body); i += 7 {
		end := i + 7
		if end > len(body) {
			end = len(body)
		}
		got, err := ex.Feed([]byte(body[i:end]))
		require.NoError(t, err)
		all = append(all, got...)
	}
	require.Len(t, all, 4)
	require.Equal(t, "/success", all[0].Path)
	require.Equal(t, true, all[0].Value)
	require.Equal(t, "/data/^", all[1].Path)
	require.Equal(t, "/data/^", all[2].Path)
	require.Equal(t, "/message", all[3].Path)
	require.Equal(t, "ok", all[3].Value)
}

func TestFeedMalformedJSON(t *testing.T) {
	ex := jsonstream.New("/records/^")
	_, err := ex.Feed([]byte(`{"records": [}`))
	require.Error(t, err)
}

func TestFeedIgnoresUnconfiguredFields(t *testing.T) {
	ex := jsonstream.New("/data/^")
	got, err := ex.Feed([]byte(`{"noise":{"deep":[1,2,3]},"data":[{"x":1}]}`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "/data/^", got[0].Path)
}
