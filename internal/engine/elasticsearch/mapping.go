package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for product documents.
const DefaultIndexName = "storefront_products"

// buildIndexMapping returns the JSON settings and mapping for the products
// index. Facetable fields are keywords under a lowercase normalizer so
// filters and buckets are case-insensitive; attributes map dynamically to
// the same keyword type.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "normalizer": {
        "lowercase_normalizer": {
          "type": "custom",
          "filter": ["lowercase"]
        }
      },
      "analyzer": {
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      {
        "attributes_as_keywords": {
          "path_match": "attributes.*",
          "mapping": { "type": "keyword", "normalizer": "lowercase_normalizer", "ignore_above": 256 }
        }
      }
    ],
    "properties": {
      "tenant_id":   { "type": "keyword" },
      "id":          { "type": "keyword" },
      "title":       { "type": "text", "fields": { "keyword": { "type": "keyword", "normalizer": "lowercase_normalizer", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "handle":      { "type": "keyword" },
      "description": { "type": "text" },
      "brand":       { "type": "keyword", "normalizer": "lowercase_normalizer", "fields": { "text": { "type": "text" } } },
      "category":    { "type": "keyword", "normalizer": "lowercase_normalizer", "fields": { "text": { "type": "text" } } },
      "tags":        { "type": "keyword", "normalizer": "lowercase_normalizer", "fields": { "text": { "type": "text" } } },
      "collections": { "type": "keyword", "normalizer": "lowercase_normalizer" },
      "price":       { "type": "long" },
      "currency":    { "type": "keyword" },
      "status":      { "type": "keyword" },
      "image_url":   { "type": "keyword", "index": false },
      "attributes":  { "type": "object" },
      "updated_at":  { "type": "date" }
    }
  }
}`
}
