package view

import (
	"errors"
	"fmt"
	"net/http"

	"room-web/internal/domain"
)

const (
	msgLoadFailed      = "Erreur lors du chargement"
	msgNotFound        = "Logement non trouvé"
	msgCreateFailed    = "Erreur lors de la création"
	msgContactFailed   = "Erreur lors de l'envoi du message"
	msgSignedOut       = "Vous devez être connecté"
	msgInFlight        = "Une soumission est déjà en cours"
	msgSessionDown     = "Session indisponible, réessayez dans un instant"
	msgInvalidForm     = "Vérifiez les champs du formulaire"
	msgContactSent     = "Message envoyé avec succès !"
	msgEmptyListings   = "Aucun logement disponible"
	msgSignInToCreate  = "Connectez-vous pour ajouter un logement."
	msgSignInToContact = "Connectez-vous pour envoyer un message au propriétaire"
)

// Message turns a load error into the text shown in the page's error state.
func Message(err error) string {
	return userMessage(err, msgLoadFailed, true)
}

// CreateMessage explains a failed listing creation.
func CreateMessage(err error) string {
	return userMessage(err, msgCreateFailed, false)
}

// ContactMessage explains a failed contact request.
func ContactMessage(err error) string {
	return userMessage(err, msgContactFailed, false)
}

// userMessage prefers the backend's own explanation. Load errors always carry
// the status so the visitor can tell an outage from a bad request.
func userMessage(err error, fallback string, withStatus bool) string {
	if err == nil {
		return ""
	}

	var (
		valErr *domain.ValidationError
		netErr *domain.NetworkError
	)

	switch {
	case errors.Is(err, domain.ErrListingNotFound):
		return msgNotFound
	case errors.Is(err, domain.ErrSubmissionInFlight):
		return msgInFlight
	case errors.Is(err, domain.ErrSessionUnavailable):
		return msgSessionDown
	case errors.As(err, &valErr):
		if valErr.Message != "" {
			return valErr.Message
		}
		if len(valErr.Fields) > 0 {
			return msgInvalidForm
		}
	case errors.Is(err, domain.ErrUnauthenticated):
		return msgSignedOut
	case errors.As(err, &netErr):
		if withStatus {
			return fmt.Sprintf("%s (%s)", fallback, networkDetail(netErr))
		}
		if netErr.Status != 0 && netErr.Reason != "" {
			return netErr.Reason
		}
	}
	return fallback
}

func networkDetail(e *domain.NetworkError) string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if e.Status == 0 {
		return reason
	}
	status := fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
	if reason == "" || reason == http.StatusText(e.Status) {
		return status
	}
	return status + ": " + reason
}
