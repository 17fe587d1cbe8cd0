package chroma

type collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createCollectionRequest struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create"`
}

type upsertRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Metadatas  []map[string]any `json:"metadatas"`
	Documents  []string         `json:"documents"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

// queryResponse holds one result group per query embedding.
type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float32        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Documents [][]string         `json:"documents"`
}

type getRequest struct {
	IDs     []string `json:"ids"`
	Include []string `json:"include"`
}

type getResponse struct {
	IDs        []string         `json:"ids"`
	Metadatas  []map[string]any `json:"metadatas"`
	Documents  []string         `json:"documents"`
	Embeddings [][]float32      `json:"embeddings"`
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}
