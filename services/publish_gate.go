package services

// PublishGate ist die blockierende Prüfung direkt vor der Veröffentlichung.
// Jeder Fehler verhindert den Übergang; Warnungen nie.
type PublishGate struct {
	Words            Band
	InternalLinks    Band
	MinExternalLinks int
	TitleBand        Band
	MetaBand         Band
}

// NewPublishGate erstellt das Gate mit den Standard-Schwellen.
func NewPublishGate() *PublishGate {
	return &PublishGate{
		Words:            Band{Min: 1500, Max: 3000},
		InternalLinks:    Band{Min: 2, Max: 5},
		MinExternalLinks: 1,
		TitleBand:        Band{Min: 50, Max: 60},
		MetaBand:         Band{Min: 150, Max: 160},
	}
}

// Check prüft Body, Titel und Meta-Description. Das Ergebnis ist das einzige
// Prädikat für menschliche Freigabe und SLA-Auto-Approval.
func (g *PublishGate) Check(in ValidationInput) ValidationResult {
	b := newResultBuilder()

	checkTitle(b, in.Title, g.TitleBand)
	checkWordCount(b, in.Body, g.Words.Min, g.Words.Max, 0)
	checkPlaceholders(b, in)
	checkMetaDescription(b, in.MetaDescription, g.MetaBand)
	checkFeaturedImage(b, in.FeaturedImageURL)

	counts := checkShortcodes(b, in.Body)
	internal := counts.Open[LinkInternal]
	if internal < g.InternalLinks.Min {
		b.errorf("internal link count %d is below the minimum of %d", internal, g.InternalLinks.Min)
	} else if internal > g.InternalLinks.Max {
		b.warnf("internal link count %d exceeds the recommended maximum of %d", internal, g.InternalLinks.Max)
	}
	if external := counts.Open[LinkExternal]; external < g.MinExternalLinks {
		b.errorf("external link count %d is below the minimum of %d", external, g.MinExternalLinks)
	}

	sd := InspectStructuredData(in.Body)
	b.metric("has_structured_data", sd.Present)
	b.metric("structured_data_valid", sd.Parsed)
	b.metric("structured_data_complete", sd.Complete)
	switch {
	case !sd.Present:
		b.errorf("structured data block is missing")
	case !sd.Parsed:
		b.errorf("structured data block is not valid JSON")
	case !sd.Complete:
		b.warnf("structured data is missing @context or @type")
	}

	faq := HasFAQSection(in.Body)
	b.metric("has_faq_section", faq)
	if faq && !sd.HasType("FAQPage") {
		b.warnf("FAQ section found without FAQPage structured data")
	}

	return b.result()
}
