package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/expertsure/expertsure/internal/dataset"
	"github.com/expertsure/expertsure/internal/engine"
	"github.com/expertsure/expertsure/internal/events"
	"github.com/expertsure/expertsure/internal/slidespec"
)

// ChatReply is the answer to a dataset question plus the columns it was
// derived from and follow-ups the client can offer.
type ChatReply struct {
	Answer           string
	Sources          []string
	SuggestedActions []string
}

// Chat answers a free-form question about a project's dataset with
// simple keyword heuristics and publishes the answer as a chat event.
// It never mutates project state.
func (o *Orchestrator) Chat(ctx context.Context, projectID, question string) (*ChatReply, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ds, err := o.loadDataset(ctx, project)
	if err != nil {
		return nil, err
	}

	reply := answerQuestion(ds, question)
	o.publish(ctx, events.TypeChatResponse, projectID, events.ChatResponse{
		Question:         question,
		Answer:           reply.Answer,
		Sources:          reply.Sources,
		SuggestedActions: reply.SuggestedActions,
	})
	return reply, nil
}

// answerQuestion resolves a question against dataset shape and simple
// column statistics.
func answerQuestion(ds *dataset.Dataset, question string) *ChatReply {
	q := strings.ToLower(question)

	switch {
	case strings.Contains(q, "column") || strings.Contains(q, "field"):
		names := make([]string, 0, len(ds.Columns()))
		sources := make([]string, 0, len(ds.Columns()))
		for _, f := range ds.Columns() {
			names = append(names, fmt.Sprintf("%s (%s)", f.Name, f.Type))
			sources = append(sources, f.Name)
		}
		return &ChatReply{
			Answer:           fmt.Sprintf("The dataset has %d columns: %s.", len(names), strings.Join(names, ", ")),
			Sources:          sources,
			SuggestedActions: []string{"Ask about a specific column's total or average."},
		}

	case strings.Contains(q, "how many") && (strings.Contains(q, "row") || strings.Contains(q, "record")):
		return &ChatReply{
			Answer:           fmt.Sprintf("The dataset contains %d records.", ds.NumRows()),
			SuggestedActions: []string{"Ask for the column list to see what each record carries."},
		}
	}

	// Column-specific questions: find a numeric column named in the question.
	for _, f := range ds.Columns() {
		if f.Type != slidespec.FieldNumeric {
			continue
		}
		if !strings.Contains(q, strings.ToLower(f.Name)) &&
			!strings.Contains(q, strings.ToLower(engine.FormatHeader(f.Name))) {
			continue
		}

		values, err := ds.ColumnValues(f.Name, nil)
		if err != nil {
			continue
		}
		var sum float64
		count := 0
		for _, v := range values {
			if v.Null || !v.Numeric {
				continue
			}
			sum += v.Num
			count++
		}
		if count == 0 {
			return &ChatReply{
				Answer:  fmt.Sprintf("%s has no numeric values.", engine.FormatHeader(f.Name)),
				Sources: []string{f.Name},
			}
		}

		header := engine.FormatHeader(f.Name)
		reply := &ChatReply{
			Sources:          []string{f.Name},
			SuggestedActions: []string{fmt.Sprintf("Add %s to a slide row to include it in the deck.", header)},
		}
		if strings.Contains(q, "average") || strings.Contains(q, "mean") {
			reply.Answer = fmt.Sprintf("The average %s is %s across %d records.",
				header, engine.FormatValue(sum/float64(count), f.Name), count)
			return reply
		}
		reply.Answer = fmt.Sprintf("The total %s is %s across %d records.",
			header, engine.FormatValue(sum, f.Name), count)
		return reply
	}

	return &ChatReply{
		Answer: fmt.Sprintf("The dataset has %d records and %d columns. Ask about a specific column, the row count, or the column list.",
			ds.NumRows(), len(ds.Columns())),
		SuggestedActions: []string{"Ask for the column list.", "Ask how many records the dataset has."},
	}
}
