package ecw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeXMLFacilities(t *testing.T) {
	payload, err := decodeXML(facilitiesXML)
	require.NoError(t, err)

	recs := records(payload, "facilities", "facility")
	require.Len(t, recs, 2)
	assert.Equal(t, "7", field(recs[0], "Id"))
	assert.Equal(t, "Uptown Surgery Center", field(recs[1], "Name"))
}

func TestDecodeXMLRepeatedRootChildren(t *testing.T) {
	body := `<root>
<surgical_history><displayIndex>1</displayIndex><reason>A</reason></surgical_history>
<surgical_history><displayIndex>2</displayIndex><reason>B</reason></surgical_history>
</root>`
	payload, err := decodeXML(body)
	require.NoError(t, err)

	m := payload.(map[string]any)
	list, ok := m["surgical_history"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 2)
}

func TestDecodeXMLAttributesAndText(t *testing.T) {
	payload, err := decodeXML(`<root><status code="0">saved</status><note id="4"/></root>`)
	require.NoError(t, err)

	m := payload.(map[string]any)
	assert.Equal(t, map[string]any{"@code": "0", "#text": "saved"}, m["status"])
	assert.Equal(t, map[string]any{"@id": "4"}, m["note"])
}

func TestDecodeXMLMixedSiblings(t *testing.T) {
	payload, err := decodeXML(`<root><a>1</a><a>2</a><b>x</b></root>`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{"1", "2"}, "b": "x"}, payload)
}

func TestDecodeXMLPluralContainer(t *testing.T) {
	payload, err := decodeXML(`<root><patients><patient><id>1</id></patient></patients></root>`)
	require.NoError(t, err)

	recs := records(payload, "patients")
	require.Len(t, recs, 1)
	assert.Equal(t, "1", field(recs[0], "id"))
}

func TestDecodeXMLLeafRoot(t *testing.T) {
	payload, err := decodeXML(`<root> true </root>`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"root": "true"}, payload)
}

func TestDecodeXMLCharsetAndEntities(t *testing.T) {
	body := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><root><name>Caf\xe9 &amp; Bar&nbsp;</name></root>"
	payload, err := decodeXML(body)
	require.NoError(t, err)
	assert.Equal(t, "Café & Bar", payload.(map[string]any)["name"])
}

func TestDecodeXMLErrors(t *testing.T) {
	for _, body := range []string{
		`<root><a></b></root>`,
		`<root><a>`,
		`<?xml version="1.0"?>`,
	} {
		_, err := decodeXML(body)
		assert.Error(t, err, body)
	}
}
