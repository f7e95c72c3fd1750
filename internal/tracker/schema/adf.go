package schema

// Document is an Atlassian Document Format body.
type Document struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	Content []Node `json:"content"`
}

// Node is an ADF block or inline node.
type Node struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Content []Node `json:"content,omitempty"`
}

// ADF wraps text in a single-paragraph document.
func ADF(text string) Document {
	return Document{
		Type:    "doc",
		Version: 1,
		Content: []Node{{
			Type:    "paragraph",
			Content: []Node{{Type: "text", Text: text}},
		}},
	}
}
