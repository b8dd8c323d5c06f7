package catalog

// Product mirrors the fields pulled from the Shopify Admin API that the
// concierge cares about.
type Product struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Handle          string    `json:"handle"`
	Tags            []string  `json:"tags"`
	DescriptionHTML string    `json:"descriptionHtml"`
	UpdatedAt       string    `json:"updatedAt"`
	Variants        []Variant `json:"variants"`
}

// Variant identifies a purchasable unit. Its ID is what a {v:...} marker in
// a model reply points at.
type Variant struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	SKU   string `json:"sku"`
	Price string `json:"price"`
}

// Document is the unit stored in the vector index: one text blob per
// product plus the metadata echoed back on retrieval.
type Document struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Metadata travels with every indexed vector and comes back on each match.
type Metadata struct {
	Title      string   `json:"title"`
	Handle     string   `json:"handle"`
	VariantIDs []string `json:"variant_ids,omitempty"`
	Source     string   `json:"source"`
}
