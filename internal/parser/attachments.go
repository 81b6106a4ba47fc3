package parser

// signatureFilename is the detached S/MIME signature, never reported as an attachment.
const signatureFilename = "smime.p7s"

// CollectAttachments returns the attachment filenames of the part tree in
// depth-first pre-order. Containers are always descended into, even when
// they are flagged as attachments themselves.
func CollectAttachments(root *Part) []string {
	names := make([]string, 0)

	var walk func(p *Part)
	walk = func(p *Part) {
		if p == nil {
			return
		}
		if p.IsAttachment() && p.Filename != "" && p.Filename != signatureFilename {
			names = append(names, p.Filename)
		}
		for _, sub := range p.Parts {
			walk(sub)
		}
	}
	walk(root)

	return names
}
