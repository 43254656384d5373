package metrics

import (
	"maps"
	"sync"
	"time"
)

// Counter identifies an integer counter in the registry.
type Counter int

const (
	FilesTotal Counter = iota
	FilesViaConverter
	FilesNative
	BytesRead
	ChunksTotal
	numCounters
)

var counterNames = [numCounters]string{
	FilesTotal:        "files_total",
	FilesViaConverter: "files_via_converter",
	FilesNative:       "files_native",
	BytesRead:         "bytes_read",
	ChunksTotal:       "chunks_total",
}

func (c Counter) String() string { return counterNames[c] }

// Stage identifies a timed pipeline stage.
type Stage int

const (
	StageConverterInit Stage = iota
	StageConvert
	StageExport
	StageNativeIO
	StageChunking
	StageDedupe
	StageLanguageDetect
	numStages
)

var stageNames = [numStages]string{
	StageConverterInit:  "converter_init",
	StageConvert:        "convert",
	StageExport:         "export",
	StageNativeIO:       "native_io",
	StageChunking:       "chunking",
	StageDedupe:         "dedupe",
	StageLanguageDetect: "language_detect",
}

func (s Stage) String() string { return stageNames[s] }

// Registry aggregates ingestion statistics. Every update takes the lock for
// that single update only, so concurrent pipelines can share one Registry.
// Counters only grow until Reset is called.
type Registry struct {
	mu       sync.Mutex
	counters [numCounters]int64
	seconds  [numStages]float64
	ext      map[string]int64
}

func NewRegistry() *Registry {
	return &Registry{ext: make(map[string]int64)}
}

func (r *Registry) Add(c Counter, n int64) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.counters[c] += n
	r.mu.Unlock()
}

func (r *Registry) AddDuration(s Stage, d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.seconds[s] += d.Seconds()
	r.mu.Unlock()
}

func (r *Registry) IncExt(ext string) {
	r.mu.Lock()
	r.ext[ext]++
	r.mu.Unlock()
}

// Track starts timing a stage. The returned func records the elapsed time
// and returns it; call it exactly once.
func (r *Registry) Track(s Stage) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		r.AddDuration(s, d)
		return d
	}
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	FilesTotal         int64            `json:"files_total"`
	FilesViaConverter  int64            `json:"files_via_converter"`
	FilesNative        int64            `json:"files_native"`
	BytesRead          int64            `json:"bytes_read"`
	ChunksTotal        int64            `json:"chunks_total"`
	TimeConverterInit  float64          `json:"time_converter_init"`
	TimeConvert        float64          `json:"time_convert"`
	TimeExport         float64          `json:"time_export"`
	TimeNativeIO       float64          `json:"time_native_io"`
	TimeChunking       float64          `json:"time_chunking"`
	TimeDedupe         float64          `json:"time_dedupe"`
	TimeLanguageDetect float64          `json:"time_language_detect"`
	ExtCounts          map[string]int64 `json:"ext_counts"`
}

func (r *Registry) Snapshot() Snapshot {
	counters, seconds, ext := r.values()
	return Snapshot{
		FilesTotal:         counters[FilesTotal],
		FilesViaConverter:  counters[FilesViaConverter],
		FilesNative:        counters[FilesNative],
		BytesRead:          counters[BytesRead],
		ChunksTotal:        counters[ChunksTotal],
		TimeConverterInit:  seconds[StageConverterInit],
		TimeConvert:        seconds[StageConvert],
		TimeExport:         seconds[StageExport],
		TimeNativeIO:       seconds[StageNativeIO],
		TimeChunking:       seconds[StageChunking],
		TimeDedupe:         seconds[StageDedupe],
		TimeLanguageDetect: seconds[StageLanguageDetect],
		ExtCounts:          ext,
	}
}

func (r *Registry) values() ([numCounters]int64, [numStages]float64, map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters, r.seconds, maps.Clone(r.ext)
}

// Reset zeroes every counter and timer and clears the extension histogram.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.counters = [numCounters]int64{}
	r.seconds = [numStages]float64{}
	clear(r.ext)
	r.mu.Unlock()
}

// Counter returns one counter's current value.
func (r *Registry) Counter(c Counter) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[c]
}

// Seconds returns one stage's accumulated time.
func (r *Registry) Seconds(s Stage) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seconds[s]
}
