package rga

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Convergence is the whole point: after every replica has seen every
// operation, in whatever order and multiplicity the "network" felt
// like, all replicas render the same document.

func TestConvergenceRandomOps(t *testing.T) {
	const replicas = 3
	const rounds = 40

	for seed := int64(0); seed < 10; seed++ {
		rng := rand.New(rand.NewSource(seed))

		rs := make([]*Replica, replicas)
		for i := range rs {
			rs[i], _ = New(uint64(i + 1))
		}

		// every replica edits independently
		var ops []Node
		for i, r := range rs {
			local := []ID{r.SentinelStart()}
			for j := 0; j < rounds; j++ {
				switch {
				case rng.Intn(4) == 0 && len(local) > 1:
					victim := local[1+rng.Intn(len(local)-1)]
					require.NoError(t, r.Delete(victim))
					n, _ := r.Node(victim)
					ops = append(ops, n)
				default:
					anchor := local[rng.Intn(len(local))]
					id, err := r.InsertAfter(anchor, rune('a'+i))
					require.NoError(t, err)
					local = append(local, id)
					n, _ := r.Node(id)
					ops = append(ops, n)
				}
			}
		}

		// deliver everything to everyone: shuffled per replica, with
		// every third op duplicated
		for _, r := range rs {
			delivery := make([]Node, 0, len(ops)*2)
			delivery = append(delivery, ops...)
			for i := 0; i < len(ops); i += 3 {
				delivery = append(delivery, ops[i])
			}
			rng.Shuffle(len(delivery), func(i, j int) {
				delivery[i], delivery[j] = delivery[j], delivery[i]
			})
			for _, n := range delivery {
				r.ApplyRemote(n)
			}
		}

		want := rs[0].String()
		wantFp := rs[0].Fingerprint()
		for _, r := range rs[1:] {
			assert.Equal(t, want, r.String(), "seed %d", seed)
			assert.Equal(t, wantFp, r.Fingerprint(), "seed %d", seed)
		}
	}
}

func TestCommutativity(t *testing.T) {
	// order of remote application never matters, pairwise
	r1, _ := New(1)
	a, _ := r1.InsertAfter(r1.SentinelStart(), 'a')
	b, _ := r1.InsertAfter(a, 'b')
	na, _ := r1.Node(a)
	nb, _ := r1.Node(b)

	fwd, _ := New(5)
	fwd.ApplyRemote(na)
	fwd.ApplyRemote(nb)

	rev, _ := New(6)
	rev.ApplyRemote(nb)
	rev.ApplyRemote(na)

	assert.Equal(t, fwd.String(), rev.String())
	assert.Equal(t, fwd.Fingerprint(), rev.Fingerprint())
}

func TestIdempotency(t *testing.T) {
	r1, _ := New(1)
	id, _ := r1.InsertAfter(r1.SentinelStart(), 'x')
	n, _ := r1.Node(id)

	once, _ := New(5)
	once.ApplyRemote(n)

	twice, _ := New(6)
	twice.ApplyRemote(n)
	twice.ApplyRemote(n)

	assert.Equal(t, once.String(), twice.String())
	assert.Equal(t, once.Fingerprint(), twice.Fingerprint())
}

func TestClockDominatesObservedIds(t *testing.T) {
	r, _ := New(1)
	r.ApplyRemote(Node{ID: ID{Count: 1000, Src: 9}, Origin: StartID, Char: 'z'})

	id, err := r.InsertAfter(r.SentinelStart(), 'a')
	require.NoError(t, err)
	assert.Greater(t, id.Count, uint64(1000))
}
