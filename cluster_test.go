package facefinder

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
)

func det(x, y, size, score float32) Detection {
	return Detection{Center: Point{X: x, Y: y}, Size: size, Score: score}
}

func TestCluster_IoU(t *testing.T) {
	assert := assert.New(t)

	a := det(10, 10, 10, 1)
	assert.InDelta(1.0, IoU(a, a), 1e-9)
	assert.InDelta(1.0/3, IoU(a, det(15, 10, 10, 1)), 1e-9)
	assert.InDelta(IoU(a, det(15, 10, 10, 1)), IoU(det(15, 10, 10, 1), a), 1e-9)
	assert.Zero(IoU(a, det(30, 10, 10, 1)))
	assert.Zero(IoU(a, det(20, 10, 10, 1)))
	assert.Zero(IoU(det(0, 0, 0, 1), det(0, 0, 0, 1)))
}

func TestCluster_Rect(t *testing.T) {
	r := det(50.5, 40, 21, 1).Rect()
	assert.Equal(t, Rect{Left: 40, Top: 29, Width: 21, Height: 21}, r)
}

func TestCluster_Clusterize(t *testing.T) {
	dets := []Detection{
		det(11, 10, 10, 30),
		det(100, 100, 20, 45),
		det(10, 10, 10, 50),
		det(101, 100, 20, 5),
	}
	input := slices.Clone(dets)

	got := Clusterize(dets, 0.2)
	want := []Detection{
		det(10, 10, 10, 80),
		det(100, 100, 20, 50),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Clusterize() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, input, dets, "the input should be left untouched")
}

func TestCluster_ClusterizeKeepsEncounterOrderOnTies(t *testing.T) {
	dets := []Detection{
		det(100, 10, 10, 50),
		det(10, 10, 10, 50),
		det(50, 10, 10, 50),
	}
	got := Clusterize(dets, 0.2)
	if diff := cmp.Diff(dets, got); diff != "" {
		t.Errorf("Clusterize() mismatch (-want +got):\n%s", diff)
	}
}

func TestCluster_ClusterizeEmpty(t *testing.T) {
	assert.Empty(t, Clusterize(nil, 0.2))
}

func TestCluster_ClusterizeIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		dets := make([]Detection, 40)
		for j := range dets {
			dets[j] = det(
				rng.Float32()*200,
				rng.Float32()*200,
				20+rng.Float32()*40,
				float32(rng.Intn(100)),
			)
		}
		for _, threshold := range []float64{0, 0.2, 0.5, 0.9} {
			once := Clusterize(dets, threshold)
			twice := Clusterize(once, threshold)
			if diff := cmp.Diff(once, twice); diff != "" {
				t.Fatalf("clustering a clustered set changed it (-once +twice):\n%s", diff)
			}
			for a := range once {
				for b := a + 1; b < len(once); b++ {
					assert.LessOrEqual(t, IoU(once[a], once[b]), threshold)
				}
			}
		}
	}
}

func TestCluster_LooserThresholdNeverAddsClusters(t *testing.T) {
	pairs := [][2]Detection{
		{det(10, 10, 10, 60), det(12, 10, 10, 50)},
		{det(10, 10, 10, 60), det(16, 13, 12, 70)},
		{det(10, 10, 10, 60), det(40, 40, 10, 50)},
	}
	for _, p := range pairs {
		prev := 0
		for th := 0.0; th <= 1.0; th += 0.05 {
			n := len(Clusterize(p[:], th))
			assert.GreaterOrEqual(t, n, prev, "threshold %.2f", th)
			prev = n
		}
	}
}

func TestCluster_GreedySeedsCanMergeMoreAtHigherThreshold(t *testing.T) {
	dets := []Detection{
		det(4, 4, 11, 5),
		det(7, 6, 9, 4),
		det(3, 6, 9, 3),
		det(9, 9, 13, 2),
		det(7, 7, 7, 1),
	}

	// At 0.3 the top seed absorbs (7,6), which then cannot seed its own cluster.
	assert.Equal(t, []Detection{
		det(4, 4, 11, 12),
		det(9, 9, 13, 2),
		det(7, 7, 7, 1),
	}, Clusterize(dets, 0.3))

	// At 0.4 (7,6) survives as a seed and absorbs both leftovers.
	assert.Equal(t, []Detection{
		det(4, 4, 11, 8),
		det(7, 6, 9, 7),
	}, Clusterize(dets, 0.4))
}
