package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStyleConfigValue(t *testing.T) {
	var nilConfig StyleConfig
	value, err := nilConfig.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", value)

	config := StyleConfig{"foreground": "#000000", "size": float64(512)}
	value, err = config.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"foreground":"#000000","size":512}`, value.(string))
}

func TestStyleConfigScan(t *testing.T) {
	var fromBytes StyleConfig
	require.NoError(t, fromBytes.Scan([]byte(`{"shape":"rounded"}`)))
	assert.Equal(t, StyleConfig{"shape": "rounded"}, fromBytes)

	var fromString StyleConfig
	require.NoError(t, fromString.Scan(`{"margin":4}`))
	assert.Equal(t, StyleConfig{"margin": float64(4)}, fromString)

	var fromNil StyleConfig
	require.NoError(t, fromNil.Scan(nil))
	assert.Equal(t, StyleConfig{}, fromNil)

	var invalid StyleConfig
	assert.Error(t, invalid.Scan(42))
}

func TestStyleConfigClone(t *testing.T) {
	original := StyleConfig{
		"foreground": "#000000",
		"gradient":   map[string]any{"from": "#FF0000", "to": "#0000FF"},
	}

	clone := original.Clone()
	assert.Equal(t, original, clone)

	// Nested values are copied, not shared
	clone["foreground"] = "#FFFFFF"
	clone["gradient"].(map[string]any)["from"] = "#00FF00"
	assert.Equal(t, "#000000", original["foreground"])
	assert.Equal(t, "#FF0000", original["gradient"].(map[string]any)["from"])

	var nilConfig StyleConfig
	assert.Nil(t, nilConfig.Clone())
}

func TestQRVersionBeforeCreateDefaults(t *testing.T) {
	version := &QRVersion{QRCodeID: 1}
	require.NoError(t, version.BeforeCreate(nil))

	assert.Equal(t, "Default", version.Name)
	assert.NotNil(t, version.StyleConfig)
	assert.False(t, version.CreatedAt.IsZero())
	assert.Equal(t, version.CreatedAt, version.UpdatedAt)

	// Explicit values are left alone
	named := &QRVersion{QRCodeID: 1, Name: "Blue", StyleConfig: StyleConfig{"size": 256}}
	require.NoError(t, named.BeforeCreate(nil))
	assert.Equal(t, "Blue", named.Name)
	assert.Equal(t, StyleConfig{"size": 256}, named.StyleConfig)
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "qr_codes", QRCode{}.TableName())
	assert.Equal(t, "qr_versions", QRVersion{}.TableName())
}
