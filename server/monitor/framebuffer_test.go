package monitor

import (
	"runtime"
	"testing"
	"weak"

	"github.com/cyclopcam/threatwatch/server/camera"
	"github.com/stretchr/testify/require"
)

func TestFrameBufferCapacity(t *testing.T) {
	require.Equal(t, 360, FrameBufferCapacity(30, 12))
	require.Equal(t, 179, FrameBufferCapacity(14.99, 12))
	require.Equal(t, 1, FrameBufferCapacity(0, 12))
	require.Equal(t, 1, FrameBufferCapacity(0.01, 12))
}

func TestFrameBufferOrder(t *testing.T) {
	b := NewFrameBuffer(4)
	require.Equal(t, 0, b.Len())
	require.Len(t, b.Snapshot(), 0)

	for i := int64(1); i <= 6; i++ {
		b.Add(testFrame(i))
	}
	require.Equal(t, 4, b.Len())
	snap := b.Snapshot()
	idx := []int64{}
	for _, f := range snap {
		idx = append(idx, f.Index)
	}
	require.Equal(t, []int64{3, 4, 5, 6}, idx)

	// The snapshot is not affected by later frames
	b.Add(testFrame(7))
	require.Equal(t, int64(3), snap[0].Index)
	require.Equal(t, int64(4), b.Snapshot()[0].Index)
}

func TestFrameBufferReleasesEvictedFrames(t *testing.T) {
	for _, capacity := range []int{360, 257, 1} {
		b := NewFrameBuffer(capacity)
		refs := make([]weak.Pointer[camera.Frame], 0, 2000)
		for i := int64(1); i <= 2000; i++ {
			f := testFrame(i)
			refs = append(refs, weak.Make(f))
			b.Add(f)
		}
		runtime.GC()
		runtime.GC()

		alive := 0
		for _, r := range refs {
			if r.Value() != nil {
				alive++
			}
		}
		require.Equal(t, capacity, alive, "capacity %v", capacity)
		require.Equal(t, capacity, b.Len())
		// The newest frame is still here
		require.NotNil(t, refs[len(refs)-1].Value())
		runtime.KeepAlive(b)
	}
}
