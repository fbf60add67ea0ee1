// Package export writes simulation step history as Apache Arrow IPC streams.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/pipeline"
)

// Schema metadata keys.
const (
	MetaRunID = "conviction.run_id"
	MetaSeed  = "conviction.seed"
)

// ErrEmptyHistory is returned when there are no steps to export.
var ErrEmptyHistory = errors.New("no steps to export")

// Column indexes of the step history schema.
const (
	colStep = iota
	colParticipants
	colFundingPool
	colTokenSupply
	colCollateralPool
	colTokenPrice
	colSentiment
	colMeanSentiment
	colLockedTokens
	colCandidate
	colActive
	colCompleted
	colFailed
	colAcceptedIDs
	colCompletedIDs
	colFailedIDs
)

var idList = arrow.ListOf(arrow.PrimitiveTypes.Int64)

func historyFields() []arrow.Field {
	return []arrow.Field{
		{Name: "step", Type: arrow.PrimitiveTypes.Int64},
		{Name: "participants", Type: arrow.PrimitiveTypes.Int64},
		{Name: "funding_pool", Type: arrow.PrimitiveTypes.Float64},
		{Name: "token_supply", Type: arrow.PrimitiveTypes.Float64},
		{Name: "collateral_pool", Type: arrow.PrimitiveTypes.Float64},
		{Name: "token_price", Type: arrow.PrimitiveTypes.Float64},
		{Name: "sentiment", Type: arrow.PrimitiveTypes.Float64},
		{Name: "mean_participant_sentiment", Type: arrow.PrimitiveTypes.Float64},
		{Name: "locked_tokens", Type: arrow.PrimitiveTypes.Float64},
		{Name: "candidate", Type: arrow.PrimitiveTypes.Int64},
		{Name: "active", Type: arrow.PrimitiveTypes.Int64},
		{Name: "completed", Type: arrow.PrimitiveTypes.Int64},
		{Name: "failed", Type: arrow.PrimitiveTypes.Int64},
		{Name: "accepted_ids", Type: idList, Nullable: true},
		{Name: "completed_ids", Type: idList, Nullable: true},
		{Name: "failed_ids", Type: idList, Nullable: true},
	}
}

// Header identifies the run an export belongs to.
type Header struct {
	RunID string
	Seed  uint64
}

// HistorySchema returns the Arrow schema used for step history, carrying
// the run header as metadata.
func HistorySchema(h Header) *arrow.Schema {
	md := arrow.NewMetadata(
		[]string{MetaRunID, MetaSeed},
		[]string{h.RunID, strconv.FormatUint(h.Seed, 10)},
	)
	return arrow.NewSchema(historyFields(), &md)
}

// WriteHistory writes steps as a single-record Arrow IPC stream.
func WriteHistory(w io.Writer, h Header, steps []pipeline.Snapshot) error {
	if len(steps) == 0 {
		return ErrEmptyHistory
	}

	mem := memory.NewGoAllocator()
	schema := HistorySchema(h)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, s := range steps {
		b.Field(colStep).(*array.Int64Builder).Append(int64(s.Step))
		b.Field(colParticipants).(*array.Int64Builder).Append(int64(s.Participants))
		b.Field(colFundingPool).(*array.Float64Builder).Append(s.FundingPool)
		b.Field(colTokenSupply).(*array.Float64Builder).Append(s.TokenSupply)
		b.Field(colCollateralPool).(*array.Float64Builder).Append(s.CollateralPool)
		b.Field(colTokenPrice).(*array.Float64Builder).Append(s.TokenPrice)
		b.Field(colSentiment).(*array.Float64Builder).Append(s.Sentiment)
		b.Field(colMeanSentiment).(*array.Float64Builder).Append(s.MeanSentiment)
		b.Field(colLockedTokens).(*array.Float64Builder).Append(s.LockedTokens)
		b.Field(colCandidate).(*array.Int64Builder).Append(int64(s.Statuses[models.StatusCandidate]))
		b.Field(colActive).(*array.Int64Builder).Append(int64(s.Statuses[models.StatusActive]))
		b.Field(colCompleted).(*array.Int64Builder).Append(int64(s.Statuses[models.StatusCompleted]))
		b.Field(colFailed).(*array.Int64Builder).Append(int64(s.Statuses[models.StatusFailed]))
		appendIDs(b.Field(colAcceptedIDs).(*array.ListBuilder), s.Accepted)
		appendIDs(b.Field(colCompletedIDs).(*array.ListBuilder), s.Completed)
		appendIDs(b.Field(colFailedIDs).(*array.ListBuilder), s.Failed)
	}

	rec := b.NewRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("closing arrow stream: %w", err)
	}
	return nil
}

// An empty id list is written as null to keep the common case small.
func appendIDs(lb *array.ListBuilder, ids []int) {
	if len(ids) == 0 {
		lb.AppendNull()
		return
	}
	lb.Append(true)
	vb := lb.ValueBuilder().(*array.Int64Builder)
	for _, id := range ids {
		vb.Append(int64(id))
	}
}

// ReadHistory reads a stream written by WriteHistory back into snapshots.
func ReadHistory(r io.Reader) (Header, []pipeline.Snapshot, error) {
	mem := memory.NewGoAllocator()
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return Header{}, nil, fmt.Errorf("opening arrow stream: %w", err)
	}
	defer rdr.Release()

	h, err := readHeader(rdr.Schema())
	if err != nil {
		return Header{}, nil, err
	}
	if got, want := rdr.Schema().NumFields(), len(historyFields()); got != want {
		return Header{}, nil, fmt.Errorf("unexpected column count %d, want %d", got, want)
	}

	var steps []pipeline.Snapshot
	for rdr.Next() {
		steps = append(steps, decodeRecord(rdr.Record())...)
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return Header{}, nil, fmt.Errorf("reading arrow stream: %w", err)
	}
	return h, steps, nil
}

func readHeader(schema *arrow.Schema) (Header, error) {
	md := schema.Metadata()
	var h Header
	if i := md.FindKey(MetaRunID); i >= 0 {
		h.RunID = md.Values()[i]
	}
	if i := md.FindKey(MetaSeed); i >= 0 {
		seed, err := strconv.ParseUint(md.Values()[i], 10, 64)
		if err != nil {
			return Header{}, fmt.Errorf("parsing seed metadata: %w", err)
		}
		h.Seed = seed
	}
	return h, nil
}

func decodeRecord(rec arrow.Record) []pipeline.Snapshot {
	ints := func(col int) *array.Int64 { return rec.Column(col).(*array.Int64) }
	floats := func(col int) *array.Float64 { return rec.Column(col).(*array.Float64) }
	lists := func(col int) *array.List { return rec.Column(col).(*array.List) }

	out := make([]pipeline.Snapshot, rec.NumRows())
	for i := range out {
		out[i] = pipeline.Snapshot{
			Step:           int(ints(colStep).Value(i)),
			Participants:   int(ints(colParticipants).Value(i)),
			FundingPool:    floats(colFundingPool).Value(i),
			TokenSupply:    floats(colTokenSupply).Value(i),
			CollateralPool: floats(colCollateralPool).Value(i),
			TokenPrice:     floats(colTokenPrice).Value(i),
			Sentiment:      floats(colSentiment).Value(i),
			MeanSentiment:  floats(colMeanSentiment).Value(i),
			LockedTokens:   floats(colLockedTokens).Value(i),
			Statuses: models.StatusCounts{
				models.StatusCandidate: int(ints(colCandidate).Value(i)),
				models.StatusActive:    int(ints(colActive).Value(i)),
				models.StatusCompleted: int(ints(colCompleted).Value(i)),
				models.StatusFailed:    int(ints(colFailed).Value(i)),
			},
			Accepted:  readIDs(lists(colAcceptedIDs), i),
			Completed: readIDs(lists(colCompletedIDs), i),
			Failed:    readIDs(lists(colFailedIDs), i),
		}
	}
	return out
}

func readIDs(l *array.List, i int) []int {
	if l.IsNull(i) {
		return nil
	}
	start, end := l.ValueOffsets(i)
	values := l.ListValues().(*array.Int64)
	ids := make([]int, 0, end-start)
	for j := start; j < end; j++ {
		ids = append(ids, int(values.Value(int(j))))
	}
	return ids
}
