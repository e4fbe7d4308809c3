package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dvmigrate/core/internal/record"
)

type mockMetadataSource struct {
	mock.Mock
}

func (m *mockMetadataSource) FetchEntityMetadata(ctx context.Context, entity string) (record.EntityValidity, bool, error) {
	args := m.Called(ctx, entity)
	meta, _ := args.Get(0).(record.EntityValidity)
	return meta, args.Bool(1), args.Error(2)
}

func TestValidatorLoadCachesPerEntity(t *testing.T) {
	source := new(mockMetadataSource)
	meta := record.EntityValidity{"name": {ValidForCreate: true, ValidForUpdate: true}}
	source.On("FetchEntityMetadata", mock.Anything, "account").Return(meta, true, nil).Once()

	v := NewValidator(source)

	got, err := v.Load(context.Background(), "account")
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	got2, err := v.Load(context.Background(), "account")
	require.NoError(t, err)
	assert.Equal(t, meta, got2)

	source.AssertExpectations(t) // second Load must not re-fetch
}

func TestValidatorLoadUnknownEntityCachesNil(t *testing.T) {
	source := new(mockMetadataSource)
	source.On("FetchEntityMetadata", mock.Anything, "ghost").Return(nil, false, nil).Once()

	v := NewValidator(source)
	got, err := v.Load(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)

	source.AssertExpectations(t)
}

func TestValidatorLoadPropagatesError(t *testing.T) {
	source := new(mockMetadataSource)
	source.On("FetchEntityMetadata", mock.Anything, "account").Return(nil, false, errors.New("boom"))

	v := NewValidator(source)
	_, err := v.Load(context.Background(), "account")
	assert.Error(t, err)
}

func TestDetectMissingColumns(t *testing.T) {
	source := new(mockMetadataSource)
	source.On("FetchEntityMetadata", mock.Anything, "account").Return(
		record.EntityValidity{"accountid": {ValidForCreate: true}, "name": {ValidForCreate: true}}, true, nil)
	source.On("FetchEntityMetadata", mock.Anything, "contact").Return(record.EntityValidity(nil), false, nil)

	v := NewValidator(source)
	ctx := context.Background()
	_, err := v.Load(ctx, "account")
	require.NoError(t, err)
	_, err = v.Load(ctx, "contact")
	require.NoError(t, err)

	archive := record.NewArchive(record.NewSchema())
	accRec := record.NewRecord("account", "A1")
	accRec.Set("accountid", record.NewString("A1"))
	accRec.Set("name", record.NewString("Acme"))
	accRec.Set("customfield_x", record.NewString("mystery"))
	archive.EntityData["account"] = []*record.Record{accRec}

	contactRec := record.NewRecord("contact", "C1")
	contactRec.Set("anything", record.NewString("v"))
	archive.EntityData["contact"] = []*record.Record{contactRec}

	missing := v.DetectMissingColumns(archive)
	assert.Equal(t, []string{"customfield_x"}, missing["account"])
	_, ok := missing["contact"]
	assert.False(t, ok, "entity with no target metadata is never reported as missing")
}

func TestMismatchErrorMessageIsStableAndSorted(t *testing.T) {
	err := &MismatchError{Missing: map[string][]string{
		"contact": {"customfield_y"},
		"account": {"customfield_x"},
	}}
	assert.Equal(t, "schema mismatch: account: [customfield_x] contact: [customfield_y]", err.Error())
}
