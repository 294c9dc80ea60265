// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package objsync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocument_FieldsRoundTrip(t *testing.T) {
	doc := NewDocument("Product", "p1").Set("name", "Widget").Set("qty", 3).Set("price", 9.5)

	payload, err := doc.MarshalFields()
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Widget","qty":3,"price":9.5}`, string(payload))

	loaded := NewDocument("Product", "p1")
	require.NoError(t, loaded.UnmarshalFields(payload))
	require.True(t, loaded.SameFields(doc))

	require.Equal(t, int64(3), *loaded.Int64Field("qty"))
	require.Equal(t, 9.5, *loaded.Float64Field("price"))
	require.Nil(t, loaded.Int64Field("name"))
}

func TestDocument_Accessors(t *testing.T) {
	doc := NewDocument("Product", "p1").
		Set("str", "x").
		Set("num_str", "42").
		Set("bool_str", "true").
		Set("null", nil).
		Set("flag", false)

	require.Equal(t, "x", *doc.StrField("str"))
	require.Nil(t, doc.StrField("null"))
	require.True(t, doc.HasField("null"))
	require.False(t, doc.HasField("missing"))
	require.Equal(t, int64(42), *doc.Int64Field("num_str"))
	require.True(t, *doc.BoolField("bool_str"))
	require.False(t, *doc.BoolField("flag"))

	_, err := doc.Int64FieldRequired("missing")
	require.Error(t, err)
}

func TestDocument_CloneIsIndependent(t *testing.T) {
	doc := NewDocument("Product", "p1").Set("name", "a")
	c := doc.Clone()
	c.Set("name", "b")
	require.Equal(t, "a", *doc.StrField("name"))
	require.Nil(t, (*Document)(nil).Clone())
}
