package notifications

import (
	"fmt"
	"time"

	"github.com/oesperto/comparador/internal/models"
	"github.com/oesperto/comparador/internal/realtime"
)

const (
	TableContributions = "price_contributions"
	TableSuggestions   = "suggestions"
)

// Notification IDs are derived from the source row and the transition, so the
// same change seen through realtime and through polling is delivered once.

func verificationNotification(id, product, store string, verified bool) models.Notification {
	if verified {
		return models.Notification{
			ID:        "contribution-verified-" + id,
			Title:     "Oferta verificada!",
			Message:   fmt.Sprintf("Seu preço de %s em %s foi verificado pela moderação.", product, store),
			Type:      models.NotificationSuccess,
			CreatedAt: time.Now().UTC(),
		}
	}
	return models.Notification{
		ID:        "contribution-unverified-" + id,
		Title:     "Verificação removida",
		Message:   fmt.Sprintf("Seu preço de %s em %s deixou de ser verificado.", product, store),
		Type:      models.NotificationError,
		CreatedAt: time.Now().UTC(),
	}
}

var suggestionCopy = map[models.SuggestionStatus]struct {
	title string
	kind  models.NotificationType
	text  string
}{
	models.SuggestionApproved:    {"Sugestão aprovada", models.NotificationSuccess, "Sua sugestão \"%s\" foi aprovada."},
	models.SuggestionImplemented: {"Sugestão implementada", models.NotificationInfo, "Sua sugestão \"%s\" já está disponível no app."},
	models.SuggestionRejected:    {"Sugestão recusada", models.NotificationError, "Sua sugestão \"%s\" não foi aprovada desta vez."},
	models.SuggestionPending:     {"Sugestão em análise", models.NotificationWarning, "Sua sugestão \"%s\" voltou para análise."},
}

func suggestionNotification(id, title string, status models.SuggestionStatus) (models.Notification, bool) {
	c, ok := suggestionCopy[status]
	if !ok {
		return models.Notification{}, false
	}
	return models.Notification{
		ID:        fmt.Sprintf("suggestion-%s-%s", id, status),
		Title:     c.title,
		Message:   fmt.Sprintf(c.text, title),
		Type:      c.kind,
		CreatedAt: time.Now().UTC(),
	}, true
}

func newContributionNotification(id, userName, product, store string) models.Notification {
	return models.Notification{
		ID:        "new-contribution-" + id,
		Title:     "Nova contribuição de preço",
		Message:   fmt.Sprintf("%s enviou o preço de %s em %s.", userName, product, store),
		Type:      models.NotificationInfo,
		CreatedAt: time.Now().UTC(),
	}
}

func newSuggestionNotification(id, userName, title string) models.Notification {
	return models.Notification{
		ID:        "new-suggestion-" + id,
		Title:     "Nova sugestão",
		Message:   fmt.Sprintf("%s sugeriu: %s", userName, title),
		Type:      models.NotificationInfo,
		CreatedAt: time.Now().UTC(),
	}
}

// fromContributionUpdate reports a notification only when the verified flag
// actually changed.
func fromContributionUpdate(e realtime.Event) (models.Notification, bool) {
	newVerified, ok := e.New["verified"].(bool)
	if !ok {
		return models.Notification{}, false
	}
	oldVerified, _ := e.Old["verified"].(bool)
	if newVerified == oldVerified {
		return models.Notification{}, false
	}
	return verificationNotification(str(e.New, "id"), str(e.New, "product_name"), str(e.New, "store_name"), newVerified), true
}

func fromSuggestionUpdate(e realtime.Event) (models.Notification, bool) {
	status := models.SuggestionStatus(str(e.New, "status"))
	if status == models.SuggestionStatus(str(e.Old, "status")) {
		return models.Notification{}, false
	}
	return suggestionNotification(str(e.New, "id"), str(e.New, "title"), status)
}

func fromContributionInsert(e realtime.Event) models.Notification {
	return newContributionNotification(str(e.New, "id"), str(e.New, "user_name"), str(e.New, "product_name"), str(e.New, "store_name"))
}

func fromSuggestionInsert(e realtime.Event) models.Notification {
	return newSuggestionNotification(str(e.New, "id"), str(e.New, "user_name"), str(e.New, "title"))
}

func str(row map[string]any, key string) string {
	if row == nil {
		return ""
	}
	if v, ok := row[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
