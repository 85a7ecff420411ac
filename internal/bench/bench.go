// Package bench records per-frame pipeline metrics during a headless
// fly-through (config.GetBenchMode) and emits them as a CSV for
// offline analysis, translated from original_source's src/bench.rs
// DataFrame/append/end/emit_csv.
package bench

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Frame is one tick's snapshot of pipeline throughput, mirroring
// bench.rs's DataFrame. The *Total fields are cumulative counters since
// the recorder started; CreatedChunks, GeneratedChunks and MeshedChunks
// are how much those totals grew since the previous frame
// (streaming.World doesn't track per-frame counts on its own, so
// Recorder.Append derives them).
type Frame struct {
	Time    time.Duration
	FPS     float32

	CreatedChunksTotal   int
	GeneratedChunksTotal int
	MeshedChunksTotal    int

	CreatedChunks   int
	GeneratedChunks int
	MeshedChunks    int

	WaitingForGenerate int
	WaitingForMesh     int

	LoadedChunks  int
	LoadedRegions int

	// MeshMicros is this frame's total time spent inside
	// internal/meshing's greedy mesher, in microseconds, sourced from
	// internal/profiling.
	MeshMicros int64
}

// Recorder accumulates Frames across a bench run and can print a summary
// or export them to CSV at the end.
type Recorder struct {
	mu     sync.Mutex
	start  time.Time
	last   time.Time
	frames []Frame

	prevCreated, prevGenerated, prevMeshed int
}

// NewRecorder starts a Recorder, timestamped from the moment it's built.
func NewRecorder() *Recorder {
	now := time.Now()
	return &Recorder{start: now, last: now}
}

// Append records one frame's cumulative counters, deriving this frame's
// deltas and FPS from the time and totals recorded at the previous call.
func (r *Recorder) Append(createdTotal, generatedTotal, meshedTotal, waitingGenerate, waitingMesh, loadedChunks, loadedRegions int, meshTime time.Duration) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	dt := now.Sub(r.last)
	fps := float32(0)
	if dt > 0 {
		fps = float32(time.Second) / float32(dt)
	}

	r.frames = append(r.frames, Frame{
		Time:                 now.Sub(r.start),
		FPS:                  fps,
		CreatedChunksTotal:   createdTotal,
		GeneratedChunksTotal: generatedTotal,
		MeshedChunksTotal:    meshedTotal,
		CreatedChunks:        createdTotal - r.prevCreated,
		GeneratedChunks:      generatedTotal - r.prevGenerated,
		MeshedChunks:         meshedTotal - r.prevMeshed,
		WaitingForGenerate:   waitingGenerate,
		WaitingForMesh:       waitingMesh,
		LoadedChunks:         loadedChunks,
		LoadedRegions:        loadedRegions,
		MeshMicros:           meshTime.Microseconds(),
	})

	r.prevCreated, r.prevGenerated, r.prevMeshed = createdTotal, generatedTotal, meshedTotal
	r.last = now
}

// End prints an FPS and chunk-throughput summary and writes the full
// frame history to a timestamped CSV under dir, matching bench.rs's end.
func (r *Recorder) End(dir string) {
	r.mu.Lock()
	frames := append([]Frame(nil), r.frames...)
	r.mu.Unlock()

	if len(frames) == 0 {
		log.Printf("bench: no frames recorded")
		return
	}

	printFPSSummary(frames)
	printChunkSummary(frames)

	if err := emitCSV(dir, frames); err != nil {
		log.Printf("bench: csv export failed: %v", err)
	}
}

func printFPSSummary(frames []Frame) {
	sum := float32(0)
	sorted := make([]float32, len(frames))
	for i, f := range frames {
		sum += f.FPS
		sorted[i] = f.FPS
	}
	avg := sum / float32(len(frames))

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	lowCount := len(sorted) / 10
	if lowCount == 0 {
		lowCount = 1
	}
	lowSum := float32(0)
	for _, v := range sorted[:lowCount] {
		lowSum += v
	}
	lowAvg := lowSum / float32(lowCount)

	log.Printf("bench: %d frames, avg %.1f fps, low 10%% avg %.1f fps", len(frames), avg, lowAvg)
}

func printChunkSummary(frames []Frame) {
	last := frames[len(frames)-1]
	elapsed := last.Time.Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	log.Printf("bench: %d chunks created (%.1f/s), %d generated (%.1f/s), %d meshed (%.1f/s)",
		last.CreatedChunksTotal, float64(last.CreatedChunksTotal)/elapsed,
		last.GeneratedChunksTotal, float64(last.GeneratedChunksTotal)/elapsed,
		last.MeshedChunksTotal, float64(last.MeshedChunksTotal)/elapsed)
}

var csvHeader = []string{
	"time_secs", "fps",
	"created_chunks_total", "generated_chunks_total", "meshed_chunks_total",
	"created_chunks", "generated_chunks", "meshed_chunks",
	"waiting_for_generate_chunks", "waiting_for_mesh_chunks",
	"loaded_chunks", "loaded_regions",
	"mesh_micros",
}

func emitCSV(dir string, frames []Frame) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s.csv", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, fr := range frames {
		row := []string{
			strconv.FormatFloat(fr.Time.Seconds(), 'f', 6, 64),
			strconv.FormatFloat(float64(fr.FPS), 'f', 2, 32),
			strconv.Itoa(fr.CreatedChunksTotal),
			strconv.Itoa(fr.GeneratedChunksTotal),
			strconv.Itoa(fr.MeshedChunksTotal),
			strconv.Itoa(fr.CreatedChunks),
			strconv.Itoa(fr.GeneratedChunks),
			strconv.Itoa(fr.MeshedChunks),
			strconv.Itoa(fr.WaitingForGenerate),
			strconv.Itoa(fr.WaitingForMesh),
			strconv.Itoa(fr.LoadedChunks),
			strconv.Itoa(fr.LoadedRegions),
			strconv.FormatInt(fr.MeshMicros, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	log.Printf("bench: wrote %d frames to %s", len(frames), path)
	return nil
}
