// Package responder picks the reply branch for a customer message and drafts
// the reply through the language model chain.
package responder

import (
	"context"

	"shopchat/internal/llm"
	"shopchat/internal/model"
	"shopchat/internal/service/matcher"
)

// Branch reply strategy for one message
type Branch string

const (
	// BranchResolved one product identified by memory or a confident match
	BranchResolved Branch = "resolved"
	// BranchAmbiguous products exist but none matched confidently
	BranchAmbiguous Branch = "ambiguous"
	// BranchNoProducts the owner has no products
	BranchNoProducts Branch = "no_products"
)

// Memory conversation memory used to resolve follow-ups
type Memory interface {
	IsFollowUp(text string) bool
	GetLastProduct(ctx context.Context, customerID int64) (int64, bool)
	SetLastProduct(ctx context.Context, customerID, productID int64)
}

// Drafter produces reply text for a prompt
type Drafter interface {
	Generate(ctx context.Context, prompt string) llm.Result
}

// Decision branch chosen for a message
type Decision struct {
	Branch     Branch
	Product    *model.Product  // resolved branch
	Score      float64         // matcher score of Product, zero when taken from memory
	FromMemory bool            // resolved through a follow-up
	Candidates []matcher.Match // ambiguous branch, best first
}

// Reply drafted reply and how it was produced
type Reply struct {
	Decision Decision
	Prompt   string
	Result   llm.Result
}

// Responder response generator
type Responder struct {
	memory  Memory
	drafter Drafter
}

// New creates a responder
func New(memory Memory, drafter Drafter) *Responder {
	return &Responder{memory: memory, drafter: drafter}
}

// Decide selects the branch for text from customerID against the owner's
// products. Entering the resolved branch records the product as the
// customer's last product.
func (r *Responder) Decide(ctx context.Context, customerID int64, text string, products []*model.Product) Decision {
	if len(products) == 0 {
		return Decision{Branch: BranchNoProducts}
	}

	if r.memory.IsFollowUp(text) {
		if productID, ok := r.memory.GetLastProduct(ctx, customerID); ok {
			// a remembered product outside this owner's catalog reads as a miss
			// and is kept, since a colliding customer id of another tenant may own it
			if p := findProduct(products, productID); p != nil {
				r.memory.SetLastProduct(ctx, customerID, p.ID)
				return Decision{Branch: BranchResolved, Product: p, FromMemory: true}
			}
		}
	}

	if best, score := matcher.BestMatch(text, products); best != nil && score >= matcher.Threshold {
		r.memory.SetLastProduct(ctx, customerID, best.ID)
		return Decision{Branch: BranchResolved, Product: best, Score: score}
	}

	return Decision{
		Branch:     BranchAmbiguous,
		Candidates: matcher.TopN(text, products, matcher.DefaultTopN),
	}
}

// Draft builds the prompt for d and runs it through the drafter
func (r *Responder) Draft(ctx context.Context, d Decision, text string) Reply {
	prompt := BuildPrompt(d, text)
	return Reply{
		Decision: d,
		Prompt:   prompt,
		Result:   r.drafter.Generate(ctx, prompt),
	}
}

// Respond decides and drafts in one step
func (r *Responder) Respond(ctx context.Context, customerID int64, text string, products []*model.Product) Reply {
	return r.Draft(ctx, r.Decide(ctx, customerID, text, products), text)
}

func findProduct(products []*model.Product, id int64) *model.Product {
	for _, p := range products {
		if p.ID == id {
			return p
		}
	}
	return nil
}
