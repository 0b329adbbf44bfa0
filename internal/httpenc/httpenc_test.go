package httpenc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paleoapi/compositegw/internal/httpenc"
)

func TestEncodeAllowlist(t *testing.T) {
	require.Equal(t, "abcXYZ019-._~,*()!", httpenc.Encode("abcXYZ019-._~,*()!"))
}

func TestEncodeEscapesOutsideAllowlist(t *testing.T) {
	require.Equal(t, "Canis%20lupus", httpenc.Encode("Canis lupus"))
	require.Equal(t, "a%2Fb", httpenc.Encode("a/b"))
	require.Equal(t, "%C3%A9", httpenc.Encode("é"))
}

func TestEncodeEmpty(t *testing.T) {
	require.Equal(t, "", httpenc.Encode(""))
}

func TestParamEmptyValue(t *testing.T) {
	require.Equal(t, "name=", httpenc.Param("name", ""))
}

func TestParam(t *testing.T) {
	require.Equal(t, "taxon_name=Canis%20lupus", httpenc.Param("taxon_name", "Canis lupus"))
}

func TestQueryJoins(t *testing.T) {
	require.Equal(t, "a=1&b=2", httpenc.Query("a=1", "b=2"))
}
