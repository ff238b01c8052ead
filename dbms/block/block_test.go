package block

import (
	"encoding/binary"
	"math/rand"
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestAddRecordStopsAtCapacity(t *testing.T) {
	b := New(1, 10)
	rec := []byte{1, 2, 3}

	require.True(t, b.AddRecord(0, rec))
	require.True(t, b.AddRecord(1, rec))
	require.False(t, b.AddRecord(2, rec)) // 3 × 4 = 12 > 10
	require.False(t, b.AddRecord(3, rec))

	require.Equal(t, uint16(2), b.RecordCount())
	require.Equal(t, uint16(8), b.Size())
	_, err := b.Record(2)
	require.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestAddRecordCapacityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		b := New(0, uint16(1+rng.Intn(300)))
		for id := uint16(0); id < 50; id++ {
			data := make([]byte, rng.Intn(40))
			before := b.Size()
			fits := int(b.Size())+len(data)+PrefixSize <= int(b.MaxSize())
			require.Equal(t, fits, b.AddRecord(id, data))
			if !fits {
				require.Equal(t, before, b.Size())
			}
			require.LessOrEqual(t, b.Size(), b.MaxSize())
		}
	}
}

func TestRecordLookup(t *testing.T) {
	b := New(3, DefaultSize)
	require.True(t, b.AddRecord(10, []byte("alpha")))
	require.True(t, b.AddRecord(11, []byte("beta")))

	got, err := b.Record(11)
	require.NoError(t, err)
	require.Equal(t, []byte("beta"), got)

	off, ok := b.Offset(11)
	require.True(t, ok)
	require.Equal(t, uint16(6), off)
	got, err = b.RecordAt(off)
	require.NoError(t, err)
	require.Equal(t, []byte("beta"), got)

	_, err = b.RecordAt(500)
	require.True(t, errors.Is(err, ErrRecordNotFound))
	require.False(t, b.AddRecord(10, []byte("dup")))
	require.False(t, b.AddRecord(12, make([]byte, 256)))
}

func TestSerializeRoundTrip(t *testing.T) {
	b := New(7, 512)
	for id := uint16(100); id < 120; id++ {
		require.True(t, b.AddRecord(id, []byte{byte(id), byte(id >> 8), 0xAB}))
	}
	raw := b.Serialize()
	require.Len(t, raw, b.SerializedSize())

	got, err := Deserialize(raw)
	require.NoError(t, err)
	require.Equal(t, b.ID(), got.ID())
	require.Equal(t, b.MaxSize(), got.MaxSize())
	require.Equal(t, b.Size(), got.Size())
	require.Equal(t, b.RecordCount(), got.RecordCount())

	var ids []uint16
	require.NoError(t, got.Each(func(id, off uint16) error {
		ids = append(ids, id)
		want, _ := b.Offset(id)
		require.Equal(t, want, off)
		wantBytes, err := b.Record(id)
		require.NoError(t, err)
		gotBytes, err := got.Record(id)
		require.NoError(t, err)
		require.Equal(t, wantBytes, gotBytes)
		return nil
	}))
	require.Len(t, ids, 20)
	require.Equal(t, uint16(100), ids[0])
}

func TestDeserializeRejectsShortInput(t *testing.T) {
	_, err := Deserialize(make([]byte, HeaderSize-1))
	require.True(t, errors.Is(err, ErrInvalidSerializedData))

	b := New(1, 64)
	require.True(t, b.AddRecord(1, []byte("abc")))
	raw := b.Serialize()
	_, err = Deserialize(raw[:len(raw)-1])
	require.True(t, errors.Is(err, ErrInvalidSerializedData))
}

func TestDeserializeRejectsInconsistentDirectory(t *testing.T) {
	b := New(4, 64)
	require.True(t, b.AddRecord(10, []byte("abc")))
	require.True(t, b.AddRecord(11, []byte("de")))
	raw := b.Serialize()
	_, err := Deserialize(raw)
	require.NoError(t, err)

	badCount := slices.Clone(raw)
	binary.LittleEndian.PutUint16(badCount[OffRecordCount:], 3)
	_, err = Deserialize(badCount)
	require.True(t, errors.Is(err, ErrInvalidSerializedData))

	dupID := slices.Clone(raw)
	binary.LittleEndian.PutUint16(dupID[OffDirectory+DirEntrySize:], 10)
	_, err = Deserialize(dupID)
	require.True(t, errors.Is(err, ErrInvalidSerializedData))
}

func TestLocationCompare(t *testing.T) {
	require.Equal(t, -1, Location{1, 9}.Compare(Location{2, 0}))
	require.Equal(t, 1, Location{2, 9}.Compare(Location{2, 3}))
	require.Equal(t, 0, Location{2, 3}.Compare(Location{2, 3}))
}
