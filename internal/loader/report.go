package loader

import "go.uber.org/zap"

const (
	DatasetPricePaid = "price_paid"
	DatasetEPC       = "epc"
)

// ChunkResult is the outcome of one chunk. Err is set when the chunk's
// transaction was rolled back; its rows count as neither inserted nor
// rejected.
type ChunkResult struct {
	Dataset         string
	Index           int
	Read            int
	OutOfRegion     int
	SkippedExisting int
	Rejected        int
	Ungeocoded      int
	Inserted        int
	Err             error
}

func (c ChunkResult) Failed() bool { return c.Err != nil }

func (c ChunkResult) fields() []zap.Field {
	return []zap.Field{
		zap.String("dataset", c.Dataset),
		zap.Int("chunk", c.Index),
		zap.Int("read", c.Read),
		zap.Int("out_of_region", c.OutOfRegion),
		zap.Int("skipped_existing", c.SkippedExisting),
		zap.Int("rejected", c.Rejected),
		zap.Int("ungeocoded", c.Ungeocoded),
		zap.Int("inserted", c.Inserted),
	}
}

type DatasetReport struct {
	Skipped    bool
	SkipReason string
	Malformed  int
	Chunks     []ChunkResult
}

func (d DatasetReport) Inserted() int {
	n := 0
	for _, c := range d.Chunks {
		n += c.Inserted
	}
	return n
}

func (d DatasetReport) FailedChunks() int {
	n := 0
	for _, c := range d.Chunks {
		if c.Failed() {
			n++
		}
	}
	return n
}

// Report summarises one loader run.
type Report struct {
	RunID     string
	PricePaid DatasetReport
	EPC       DatasetReport
}
