package suppress

import "strings"

// Kind is the classification of a node.
type Kind int

const (
	KindIrrelevant Kind = iota
	KindProtected
	KindImage
	KindVideo
	KindVideoSource
	KindContainer
)

func (k Kind) String() string {
	switch k {
	case KindProtected:
		return "protected"
	case KindImage:
		return "image-target"
	case KindVideo:
		return "video-target"
	case KindVideoSource:
		return "source-of-video"
	case KindContainer:
		return "container-target"
	default:
		return "irrelevant"
	}
}

// DefaultContainerIDs are the layout regions hidden on the property's pages.
var DefaultContainerIDs = []string{"sidebar-wrapper", "channel-chatroom", "injected-channel-player"}

// Classifier decides what a node is. It looks at structure only (tag,
// parent tag, id, rel) and never at content.
type Classifier struct {
	containers map[string]bool
}

// NewClassifier builds a Classifier for the given container ids.
// No ids means DefaultContainerIDs.
func NewClassifier(containerIDs ...string) Classifier {
	if len(containerIDs) == 0 {
		containerIDs = DefaultContainerIDs
	}
	set := make(map[string]bool, len(containerIDs))
	for _, id := range containerIDs {
		set[id] = true
	}
	return Classifier{containers: set}
}

// ContainerIDs returns the configured container ids.
func (c Classifier) ContainerIDs() []string {
	ids := make([]string, 0, len(c.containers))
	for id := range c.containers {
		ids = append(ids, id)
	}
	return ids
}

// Classify is pure and safe to call on every sweep.
func (c Classifier) Classify(n Node) Kind {
	tag := strings.ToLower(n.Tag)
	if tag == "" || strings.HasPrefix(tag, "#") {
		return KindIrrelevant
	}

	switch tag {
	case "meta":
		return KindProtected
	case "link":
		if isIconRel(n.Attr("rel")) {
			return KindProtected
		}
	case "img":
		return KindImage
	case "video":
		return KindVideo
	case "source":
		if strings.EqualFold(n.ParentTag, "video") {
			return KindVideoSource
		}
	}

	if id := n.Attr("id"); id != "" && c.containers[id] {
		return KindContainer
	}
	return KindIrrelevant
}

// isIconRel matches rel="icon", rel="shortcut icon", rel="apple-touch-icon".
func isIconRel(rel string) bool {
	for _, tok := range strings.Fields(strings.ToLower(rel)) {
		if tok == "icon" || strings.HasSuffix(tok, "-icon") {
			return true
		}
	}
	return false
}
