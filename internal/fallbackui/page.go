package fallbackui

import "github.com/marcogenualdo/ridegate/internal/auth"

// Page is a Surface held in memory and handed to the login template.
type Page struct {
	disabled           map[auth.ProviderKind]bool
	Notices            []Notice
	FallbackEmphasized bool
	ExternalBrowserURL string
}

func NewPage() *Page {
	return &Page{disabled: make(map[auth.ProviderKind]bool)}
}

func (p *Page) SetProviderEnabled(kind auth.ProviderKind, enabled bool) {
	p.disabled[kind] = !enabled
}

func (p *Page) ProviderEnabled(kind auth.ProviderKind) bool {
	return !p.disabled[kind]
}

func (p *Page) ClearNotices() {
	p.Notices = nil
}

func (p *Page) InsertNotice(n Notice) {
	p.Notices = append(p.Notices, n)
}

func (p *Page) EmphasizeFallback(on bool) {
	p.FallbackEmphasized = on
}

func (p *Page) OfferExternalBrowser(url string) {
	p.ExternalBrowserURL = url
}
