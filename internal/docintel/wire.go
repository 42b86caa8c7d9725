package docintel

// Wire shapes for the document intelligence REST API. Only the fields the
// pipeline reads are declared; everything else in the provider payload is
// ignored on decode.

type analyzeURLRequest struct {
	URLSource string `json:"urlSource"`
}

type operationResponse struct {
	Status        string         `json:"status"`
	Error         *wireError     `json:"error,omitempty"`
	AnalyzeResult *analyzeResult `json:"analyzeResult,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type analyzeResult struct {
	APIVersion string         `json:"apiVersion"`
	ModelID    string         `json:"modelId"`
	Content    string         `json:"content"`
	Pages      []wirePage     `json:"pages"`
	Documents  []wireDocument `json:"documents"`
}

type wirePage struct {
	PageNumber int `json:"pageNumber"`
}

type wireDocument struct {
	DocType    string               `json:"docType"`
	Confidence float64              `json:"confidence"`
	Fields     map[string]wireField `json:"fields"`
}

type wireField struct {
	Type            string       `json:"type"`
	ValueString     string       `json:"valueString"`
	Content         string       `json:"content"`
	Confidence      float64      `json:"confidence"`
	BoundingRegions []wireRegion `json:"boundingRegions"`
	Spans           []wireSpan   `json:"spans"`
}

type wireRegion struct {
	PageNumber int       `json:"pageNumber"`
	Polygon    []float64 `json:"polygon"`
}

type wireSpan struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}
