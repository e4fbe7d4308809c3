package archivefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, contents string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
}

func TestReadRoundTripsSchemaRecordsAndRelations(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "schema.json", `{
		"entities": [
			{
				"logicalName": "account",
				"primaryKey": "accountid",
				"attributes": [{"name": "parentaccountid", "isLookup": true, "targetEntity": "account"}],
				"manyToMany": [{"schemaName": "account_contact", "entity1Logical": "account", "entity2Logical": "contact"}]
			},
			{"logicalName": "contact", "primaryKey": "contactid"}
		]
	}`)

	writeFile(t, dir, "records/account.jsonl", `{"id": "A1", "attributes": {
		"name": {"kind": "string", "string": "Acme"},
		"revenue": {"kind": "money", "number": 1000},
		"parentaccountid": {"kind": "reference", "entity": "account", "id": "A2"}
	}}`+"\n")

	writeFile(t, dir, "relations/account.jsonl", `{"sourceId": "A1", "relationship": "account_contact", "targetEntity": "contact", "targetIds": ["C1", "C2"]}`+"\n")

	archive, err := Read(dir)
	require.NoError(t, err)

	require.Contains(t, archive.Schema.Entities, "account")
	assert.Equal(t, "accountid", archive.Schema.Entities["account"].PrimaryKey)

	require.Len(t, archive.EntityData["account"], 1)
	rec := archive.EntityData["account"][0]
	assert.Equal(t, "A1", rec.ID)

	name, ok := rec.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Acme", name.Str)

	revenue, ok := rec.Get("revenue")
	require.True(t, ok)
	assert.Equal(t, float64(1000), revenue.Num)

	parent, ok := rec.Get("parentaccountid")
	require.True(t, ok)
	assert.True(t, parent.IsReference())
	assert.Equal(t, "A2", parent.Ref.ID)

	require.Len(t, archive.RelationshipData["account"], 1)
	block := archive.RelationshipData["account"][0]
	assert.Equal(t, []string{"C1", "C2"}, block.TargetIDs)

	assert.Empty(t, archive.EntityData["contact"], "entity with no records file stays absent")
}

func TestReadMissingSchemaErrors(t *testing.T) {
	_, err := Read(t.TempDir())
	assert.Error(t, err)
}

func TestReadRejectsUnknownValueKind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "schema.json", `{"entities": [{"logicalName": "account", "primaryKey": "accountid"}]}`)
	writeFile(t, dir, "records/account.jsonl", `{"id": "A1", "attributes": {"x": {"kind": "mystery"}}}`+"\n")

	_, err := Read(dir)
	assert.Error(t, err)
}

func TestReadSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "schema.json", `{"entities": [{"logicalName": "account", "primaryKey": "accountid"}]}`)
	writeFile(t, dir, "records/account.jsonl", "\n"+`{"id": "A1", "attributes": {}}`+"\n\n")

	archive, err := Read(dir)
	require.NoError(t, err)
	assert.Len(t, archive.EntityData["account"], 1)
}
