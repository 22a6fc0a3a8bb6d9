package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgAt(id, localID, text string, at time.Time) *Message {
	return &Message{
		ID:        id,
		LocalID:   localID,
		Text:      text,
		Type:      TypeText,
		CreatedAt: at,
	}
}

func TestMerge_EmptyCache(t *testing.T) {
	base := time.Now()
	server := []*Message{
		msgAt("m1", "", "c1", base),
		msgAt("m2", "", "c2", base.Add(time.Second)),
	}

	merged := Merge(nil, server)

	require.Len(t, merged, 2)
	assert.Equal(t, "m1", merged[0].ID)
	assert.Equal(t, "m2", merged[1].ID)
}

func TestMerge_ServerAuthoritative(t *testing.T) {
	base := time.Now()
	cached := []*Message{
		msgAt("m1", "", "stale cipher", base),
	}
	server := []*Message{
		msgAt("m1", "", "fresh cipher", base),
		msgAt("m2", "", "c2", base.Add(time.Second)),
	}

	merged := Merge(cached, server)

	require.Len(t, merged, 2)
	assert.Equal(t, "fresh cipher", merged[0].Text)
}

func TestMerge_KeepsOptimisticResidue(t *testing.T) {
	base := time.Now()
	pending := msgAt("", TempIDPrefix+"abc", "c-pending", base.Add(2*time.Second))
	cached := []*Message{
		msgAt("m1", "", "c1", base),
		pending,
	}
	server := []*Message{
		msgAt("m1", "", "c1", base),
	}

	merged := Merge(cached, server)

	require.Len(t, merged, 2)
	assert.Equal(t, "m1", merged[0].ID)
	assert.True(t, merged[1].Pending())
	assert.Equal(t, pending.LocalID, merged[1].LocalID)
}

func TestMerge_BackfillsPlaintext(t *testing.T) {
	base := time.Now()
	cached := []*Message{
		{ID: "m1", Text: "cipher-1", Plaintext: "已解出的明文", Type: TypeText, CreatedAt: base},
	}
	server := []*Message{
		msgAt("m1", "", "cipher-1", base),
		msgAt("m2", "", "cipher-2", base.Add(time.Second)),
	}

	merged := Merge(cached, server)

	require.Len(t, merged, 2)
	assert.Equal(t, "已解出的明文", merged[0].Plaintext)
	assert.Equal(t, "", merged[1].Plaintext)
}

func TestMerge_SortedByCreatedAt(t *testing.T) {
	base := time.Now()
	cached := []*Message{
		msgAt("", TempIDPrefix+"p1", "cp", base.Add(500*time.Millisecond)),
	}
	server := []*Message{
		msgAt("m2", "", "c2", base.Add(time.Second)),
		msgAt("m1", "", "c1", base),
	}

	merged := Merge(cached, server)

	require.Len(t, merged, 3)
	assert.Equal(t, "m1", merged[0].ID)
	assert.Equal(t, TempIDPrefix+"p1", merged[1].LocalID)
	assert.Equal(t, "m2", merged[2].ID)
}

func TestMerge_Idempotent(t *testing.T) {
	base := time.Now()
	cached := []*Message{
		msgAt("m1", "", "c1", base),
		msgAt("", TempIDPrefix+"p1", "cp", base.Add(time.Second)),
	}
	server := []*Message{
		msgAt("m1", "", "c1", base),
		msgAt("m2", "", "c2", base.Add(2*time.Second)),
	}

	once := Merge(cached, server)
	twice := Merge(once, server)

	require.Len(t, twice, len(once))
	for i := range once {
		assert.Equal(t, once[i].Key(), twice[i].Key())
		assert.Equal(t, once[i].Text, twice[i].Text)
	}
}
