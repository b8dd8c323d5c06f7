package shopify

import (
	"context"
	"fmt"

	"github.com/spectraflex/omnichat/internal/model/catalog"
)

const productQuery = `
query($cursor:String,$updatedAfter:String){
  products(first:100, after:$cursor, query:$updatedAfter){
    pageInfo{hasNextPage}
    edges{
      cursor
      node{
        id title handle tags descriptionHtml updatedAt
        variants(first:5){nodes{id title sku price}}
      }
    }
  }
}
`

type productPage struct {
	Products struct {
		PageInfo struct {
			HasNextPage bool `json:"hasNextPage"`
		} `json:"pageInfo"`
		Edges []struct {
			Cursor string `json:"cursor"`
			Node   struct {
				ID              string   `json:"id"`
				Title           string   `json:"title"`
				Handle          string   `json:"handle"`
				Tags            []string `json:"tags"`
				DescriptionHTML string   `json:"descriptionHtml"`
				UpdatedAt       string   `json:"updatedAt"`
				Variants        struct {
					Nodes []struct {
						ID    string `json:"id"`
						Title string `json:"title"`
						SKU   string `json:"sku"`
						Price string `json:"price"`
					} `json:"nodes"`
				} `json:"variants"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"products"`
}

// ChangedProducts returns every product updated at or after sinceISO
// (all products when sinceISO is empty), walking cursor pagination.
func (c *Client) ChangedProducts(ctx context.Context, sinceISO string) ([]catalog.Product, error) {
	var updatedAfter any
	if sinceISO != "" {
		updatedAfter = fmt.Sprintf("updated_at:>=%s", sinceISO)
	}

	var products []catalog.Product
	var cursor any
	for {
		var page productPage
		err := c.GraphQL(ctx, productQuery, map[string]any{
			"cursor":       cursor,
			"updatedAfter": updatedAfter,
		}, &page)
		if err != nil {
			return nil, err
		}

		for _, edge := range page.Products.Edges {
			node := edge.Node
			product := catalog.Product{
				ID:              node.ID,
				Title:           node.Title,
				Handle:          node.Handle,
				Tags:            node.Tags,
				DescriptionHTML: node.DescriptionHTML,
				UpdatedAt:       node.UpdatedAt,
			}
			for _, v := range node.Variants.Nodes {
				product.Variants = append(product.Variants, catalog.Variant{
					ID:    v.ID,
					Title: v.Title,
					SKU:   v.SKU,
					Price: v.Price,
				})
			}
			products = append(products, product)
			cursor = edge.Cursor
		}

		// An empty page can't advance the cursor, so treat it as the end
		// even when pageInfo claims more.
		if !page.Products.PageInfo.HasNextPage || len(page.Products.Edges) == 0 {
			break
		}
	}

	return products, nil
}
