package embedding

import "strings"

// SelectTaskType resolves the GenAI task type for one side of a retrieval.
// "RETRIEVAL" splits into RETRIEVAL_QUERY for search text and
// RETRIEVAL_DOCUMENT for stored documents; any other configured type is
// symmetric and used for both.
func SelectTaskType(configured string, isQuery bool) string {
	switch strings.ToUpper(strings.TrimSpace(configured)) {
	case "RETRIEVAL", "RETRIEVAL_QUERY", "RETRIEVAL_DOCUMENT":
		if isQuery {
			return "RETRIEVAL_QUERY"
		}
		return "RETRIEVAL_DOCUMENT"
	case "", "SEMANTIC_SIMILARITY":
		return "SEMANTIC_SIMILARITY"
	case "CLASSIFICATION", "CLUSTERING", "QUESTION_ANSWERING", "FACT_VERIFICATION":
		return strings.ToUpper(strings.TrimSpace(configured))
	default:
		return "SEMANTIC_SIMILARITY" // Safe default
	}
}
