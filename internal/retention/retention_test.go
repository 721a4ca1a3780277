package retention

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/snapshot"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func snaps(hours ...int) []snapshot.Snapshot {
	var out []snapshot.Snapshot
	for _, h := range hours {
		out = append(out, snapshot.Snapshot{Share: "data", Time: t0.Add(time.Duration(h) * time.Hour)})
	}
	return out
}

func TestRetainLatest_Negative(t *testing.T) {
	p, err := RetainLatest(-1)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, archerrors.ErrValidation))
}

func TestRetainLatest_FiveKeepTwo(t *testing.T) {
	p, err := RetainLatest(2)
	require.NoError(t, err)

	in := snaps(3, 1, 5, 2, 4)
	got := p.Select(in)

	assert.Equal(t, snaps(3, 2, 1), got)
	assert.Equal(t, snaps(3, 1, 5, 2, 4), in, "input must not be reordered")
	assert.Equal(t, "retain latest 2", p.Description())
}

func TestRetainLatest_ZeroSelectsAll(t *testing.T) {
	p, err := RetainLatest(0)
	require.NoError(t, err)
	assert.Len(t, p.Select(snaps(1, 2, 3)), 3)
	assert.Empty(t, p.Select(nil))
}

func TestRetainLatest_FewerThanKeep(t *testing.T) {
	p, err := RetainLatest(5)
	require.NoError(t, err)
	assert.Empty(t, p.Select(snaps(1, 2)))
}

func TestRetainLatest_TiesAreDeterministic(t *testing.T) {
	p, err := RetainLatest(1)
	require.NoError(t, err)

	in := []snapshot.Snapshot{
		{Share: "b", Time: t0},
		{Share: "a", Time: t0},
		{Share: "c", Time: t0},
	}
	first := p.Select(in)
	second := p.Select([]snapshot.Snapshot{in[2], in[0], in[1]})

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"b", "c"}, []string{first[0].Share, first[1].Share})
}

func TestRetainLatest_Property(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for range 200 {
		n := rng.IntN(6)
		size := rng.IntN(12)
		var in []snapshot.Snapshot
		for i := range size {
			in = append(in, snapshot.Snapshot{Share: "data", Time: t0.Add(time.Duration(i) * time.Minute)})
		}
		rng.Shuffle(len(in), func(i, j int) { in[i], in[j] = in[j], in[i] })

		p, err := RetainLatest(n)
		require.NoError(t, err)
		victims := p.Select(in)

		require.Len(t, victims, max(0, size-n))

		deleted := map[time.Time]bool{}
		for _, v := range victims {
			deleted[v.Time] = true
		}
		for _, kept := range in {
			if deleted[kept.Time] {
				continue
			}
			for _, v := range victims {
				assert.True(t, v.Time.Before(kept.Time))
			}
		}
	}
}
