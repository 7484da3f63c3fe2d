package pipeline

import (
	"fmt"

	"echograph/models"
)

// summaryFor renders the deterministic human-readable sentence shown to
// reviewers for each relationship type.
func summaryFor(relType models.RelationshipType, sourceTitle, targetTitle string, confidence float64) string {
	switch relType {
	case models.RelationshipCompliance:
		return fmt.Sprintf("'%s' appears to implement or comply with requirements from '%s' (confidence: %.1f%%)",
			targetTitle, sourceTitle, confidence)
	case models.RelationshipReference:
		return fmt.Sprintf("'%s' references or builds on norm '%s' (confidence: %.1f%%)",
			sourceTitle, targetTitle, confidence)
	case models.RelationshipSupersedes:
		return fmt.Sprintf("'%s' appears to supersede the earlier version '%s' (confidence: %.1f%%)",
			sourceTitle, targetTitle, confidence)
	case models.RelationshipConflict:
		return fmt.Sprintf("'%s' may conflict with '%s' (confidence: %.1f%%)",
			sourceTitle, targetTitle, confidence)
	default:
		return fmt.Sprintf("'%s' covers topics similar to '%s' (confidence: %.1f%%)",
			sourceTitle, targetTitle, confidence)
	}
}
