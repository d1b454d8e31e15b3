package responder

import (
	"fmt"
	"strconv"
	"strings"

	"shopchat/internal/model"
)

const unknown = "unknown"

// NoProductsPrompt fixed prompt used when the owner has no products
const NoProductsPrompt = `You are a friendly sales assistant replying to a customer on WhatsApp.
The store has not listed any products yet.
Politely tell the customer that there are no products to show right now and that the business owner needs to add products to the catalog before you can answer product questions.
Keep the reply short. Do not mention any company name.`

const resolvedPreamble = `You are a friendly sales assistant replying to a customer on WhatsApp.
Answer the customer's message using ONLY the product facts below.
If a fact is "unknown", say that you don't know it. Never invent prices, quantities or other details.
Keep the reply short and natural.`

const ambiguousPreamble = `You are a friendly sales assistant replying to a customer on WhatsApp.
The customer's message does not clearly identify one product. These are the closest matches in the catalog:`

const ambiguousInstruction = `Ask the customer which of these products they mean, referring to them by name.
Do not answer anything else about the products until the customer has chosen one.
Keep the reply short and natural.`

// BuildPrompt renders the prompt for a decision. Product codes never appear in it.
func BuildPrompt(d Decision, text string) string {
	switch d.Branch {
	case BranchResolved:
		return resolvedPrompt(d.Product, text)
	case BranchAmbiguous:
		return ambiguousPrompt(d, text)
	default:
		return NoProductsPrompt
	}
}

func resolvedPrompt(p *model.Product, text string) string {
	var sb strings.Builder
	sb.WriteString(resolvedPreamble)
	sb.WriteString("\n\nProduct facts:\n")
	fmt.Fprintf(&sb, "- Name: %s\n", p.Name)
	fmt.Fprintf(&sb, "- Price: %s\n", formatPrice(p.Price))
	fmt.Fprintf(&sb, "- Available quantity: %s\n", formatQty(p.AvailableQty))
	fmt.Fprintf(&sb, "- Total stock quantity: %s\n", formatQty(p.StockQty))
	fmt.Fprintf(&sb, "\nCustomer message: %q", text)
	return sb.String()
}

func ambiguousPrompt(d Decision, text string) string {
	var sb strings.Builder
	sb.WriteString(ambiguousPreamble)
	sb.WriteString("\n")
	for i, c := range d.Candidates {
		fmt.Fprintf(&sb, "%d. %s (price: %s, available: %s, stock: %s)\n",
			i+1, c.Product.Name, formatPrice(c.Product.Price), formatQty(c.Product.AvailableQty), formatQty(c.Product.StockQty))
	}
	sb.WriteString("\n")
	sb.WriteString(ambiguousInstruction)
	fmt.Fprintf(&sb, "\n\nCustomer message: %q", text)
	return sb.String()
}

func formatPrice(price *float64) string {
	if price == nil {
		return unknown
	}
	return strconv.FormatFloat(*price, 'f', 2, 64)
}

func formatQty(qty *int) string {
	if qty == nil {
		return unknown
	}
	return strconv.Itoa(*qty)
}
