package service

import (
	"bytes"
	"context"
	"html/template"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"magiainterna/backend/internal/domain"
)

const (
	AudienceAll    = "all"
	AudienceTop    = "top"
	AudienceRecent = "recent"

	topCustomerThreshold = 100000
	recentPurchaseWindow = 30 * 24 * time.Hour
)

var emailTemplates = []domain.EmailTemplate{
	{
		ID:      "promo-general",
		Name:    "Promoción General",
		Subject: "¡Ofertas Especiales en Magia Interna!",
		Body:    "¡Hola!\n\nQueremos contarte que tenemos descuentos increíbles en nuestra nueva colección.\n\nNo te pierdas la oportunidad de renovar tu estilo con nuestras prendas únicas.\n\nVisítanos en nuestra tienda o contáctanos para más información.\n\n¡Te esperamos!",
	},
	{
		ID:      "new-collection",
		Name:    "Nueva Colección",
		Subject: "Descubre nuestra Nueva Colección ✨",
		Body:    "¡Hola!\n\nEstamos emocionados de presentarte nuestra más reciente colección. Diseños exclusivos pensados para ti.\n\nVen a conocer las novedades que tenemos en Magia Interna.\n\n¡Esperamos verte pronto!",
	},
	{
		ID:      "birthday",
		Name:    "Feliz Cumpleaños",
		Subject: "¡Feliz Cumpleaños te desea Magia Interna! 🎂",
		Body:    "¡Hola!\n\nSabemos que es tu mes especial y queremos celebrarlo contigo.\n\nPasa por nuestra tienda y recibe un descuento especial en tu compra como regalo de cumpleaños.\n\n¡Que tengas un día mágico!",
	},
	{
		ID:      "black-friday",
		Name:    "Black Friday",
		Subject: "¡Black Friday en Magia Interna! 🖤",
		Body:    "¡Hola!\n\nEl momento que esperabas ha llegado. Aprovecha nuestros descuentos de Black Friday en toda la tienda.\n\nOfertas por tiempo limitado. ¡No te quedes sin tus favoritos!\n\n¡Te esperamos!",
	},
}

var emailSeparators = regexp.MustCompile(`[\n,;]`)

// promotionHTMLTmpl renders the campaign e-mail. html/template escapes
// every field.
var promotionHTMLTmpl = template.Must(template.New("promotion").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; color: #333;">
  <div style="background: #7b1fa2; color: #fff; padding: 24px; text-align: center;">
    <h1 style="margin: 0; font-size: 24px;">{{.CompanyName}}</h1>
  </div>
  <div style="padding: 24px;">
    <h2 style="margin-top: 0;">{{.Subject}}</h2>
    {{range .Paragraphs}}<p style="margin: 0 0 15px 0;">{{.}}</p>
    {{end}}{{if .PromoLink}}<div style="margin: 30px 0; text-align: center;">
      <a href="{{.PromoLink}}" style="background: #7b1fa2; color: #fff; padding: 12px 24px; border-radius: 6px; text-decoration: none;">Ver promoción</a>
    </div>
    {{end}}</div>
  <div style="background: #f5f5f5; padding: 16px; font-size: 12px; color: #777; text-align: center;">
    <p style="margin: 5px 0;">Este email fue enviado por: <strong>{{.CompanyName}}</strong>.</p>
    <p style="margin: 5px 0;">Por favor, no respondas a este email.</p>
    {{if .CompanyAddress}}<p style="margin: 5px 0;">{{.CompanyAddress}}</p>
    {{end}}<p style="margin: 5px 0;">&copy; {{.Year}} {{.CompanyName}}. Todos los derechos reservados.</p>
  </div>
</div>
`))

func (s *Service) EmailTemplates() []domain.EmailTemplate {
	return append([]domain.EmailTemplate(nil), emailTemplates...)
}

// PreviewPromotion renders a campaign. Subject and body fall back to the
// selected template when left empty.
func (s *Service) PreviewPromotion(ctx context.Context, req domain.PromotionPreviewRequest) (domain.PromotionPreview, error) {
	subject := strings.TrimSpace(req.Subject)
	body := strings.TrimSpace(req.Body)
	if id := strings.TrimSpace(req.TemplateID); id != "" {
		tmpl, ok := findTemplate(id)
		if !ok {
			return domain.PromotionPreview{}, invalidf("unknown template %s", id)
		}
		if subject == "" {
			subject = tmpl.Subject
		}
		if body == "" {
			body = tmpl.Body
		}
	}
	if subject == "" || body == "" {
		return domain.PromotionPreview{}, invalidf("subject and body are required")
	}

	link := strings.TrimSpace(req.PromoLink)
	if link != "" {
		parsed, err := url.Parse(link)
		if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
			return domain.PromotionPreview{}, invalidf("promo link must be an http or https URL")
		}
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.PromotionPreview{}, err
	}

	paragraphs := make([]string, 0, 8)
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}

	var buf bytes.Buffer
	if err := promotionHTMLTmpl.Execute(&buf, struct {
		CompanyName    string
		CompanyAddress string
		Subject        string
		Paragraphs     []string
		PromoLink      string
		Year           int
	}{
		CompanyName:    settings.CompanyName,
		CompanyAddress: settings.CompanyAddress,
		Subject:        subject,
		Paragraphs:     paragraphs,
		PromoLink:      link,
		Year:           s.now().Year(),
	}); err != nil {
		return domain.PromotionPreview{}, err
	}

	text := body
	if link != "" {
		text += "\n\nVisita: " + link
	}
	return domain.PromotionPreview{Subject: subject, HTML: buf.String(), Text: text}, nil
}

// PromotionRecipients resolves the audience for a filter and merges the
// selected customers with manually typed addresses.
func (s *Service) PromotionRecipients(ctx context.Context, req domain.PromotionRecipientsRequest) (domain.PromotionRecipients, error) {
	filter := strings.ToLower(strings.TrimSpace(req.Filter))
	if filter == "" {
		filter = AudienceAll
	}
	if filter != AudienceAll && filter != AudienceTop && filter != AudienceRecent {
		return domain.PromotionRecipients{}, invalidf("filter must be all, top or recent")
	}

	customers, err := s.repo.ListCustomers(ctx, domain.CustomerFilter{WithEmail: true})
	if err != nil {
		return domain.PromotionRecipients{}, err
	}

	now := s.now()
	audience := make([]domain.PromotionContact, 0, len(customers))
	for _, c := range customers {
		if c.CustomerType == domain.CustomerTypeAnonymous || !c.Active {
			continue
		}
		switch filter {
		case AudienceTop:
			if c.TotalPurchases <= topCustomerThreshold {
				continue
			}
		case AudienceRecent:
			if c.LastPurchaseDate == nil || !c.LastPurchaseDate.After(now.Add(-recentPurchaseWindow)) {
				continue
			}
		}
		audience = append(audience, domain.PromotionContact{
			ID:               c.ID,
			Name:             c.Name,
			Email:            c.Email,
			TotalPurchases:   c.TotalPurchases,
			LastPurchaseDate: c.LastPurchaseDate,
		})
	}
	if filter == AudienceTop {
		sort.SliceStable(audience, func(i, j int) bool {
			return audience[i].TotalPurchases > audience[j].TotalPurchases
		})
	}

	selected := audience
	if len(req.CustomerIDs) > 0 {
		wanted := make(map[string]bool, len(req.CustomerIDs))
		for _, id := range req.CustomerIDs {
			wanted[strings.TrimSpace(id)] = true
		}
		selected = make([]domain.PromotionContact, 0, len(req.CustomerIDs))
		for _, contact := range audience {
			if wanted[contact.ID] {
				selected = append(selected, contact)
			}
		}
	}

	emails := make([]string, 0, len(selected))
	for _, contact := range selected {
		emails = append(emails, contact.Email)
	}
	emails = MergeEmails(emails, req.ManualEmails)

	return domain.PromotionRecipients{Audience: audience, Emails: emails, Count: len(emails)}, nil
}

// MergeEmails appends the addresses in manual (split on newlines, commas or
// semicolons) to base, dropping entries without "@" and duplicates while
// keeping first-seen order.
func MergeEmails(base []string, manual string) []string {
	seen := make(map[string]bool, len(base))
	merged := make([]string, 0, len(base))
	add := func(raw string) {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" || !strings.Contains(email, "@") || seen[email] {
			return
		}
		seen[email] = true
		merged = append(merged, email)
	}
	for _, email := range base {
		add(email)
	}
	for _, email := range emailSeparators.Split(manual, -1) {
		add(email)
	}
	return merged
}

func findTemplate(id string) (domain.EmailTemplate, bool) {
	for _, tmpl := range emailTemplates {
		if tmpl.ID == id {
			return tmpl, true
		}
	}
	return domain.EmailTemplate{}, false
}
