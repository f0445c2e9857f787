package notify

import "strings"

// The clinic runs Spanish-first; "es" is the catalog's default locale and the
// fallback for any missing locale or key.
const defaultLocale = "es"

type message struct {
	title string
	body  string
}

var catalog = map[string]map[Kind]message{
	"es": {
		KindAppointmentRequested: {
			title: "Nueva solicitud de cita",
			body:  "{patient} solicitó una cita de {service} para el {date} a las {time}.",
		},
		KindAppointmentApproved: {
			title: "Cita confirmada",
			body:  "{dentist} confirmó tu cita del {date} a las {time}.",
		},
		KindAppointmentCancelled: {
			title: "Cita cancelada",
			body:  "{dentist} canceló tu cita del {date} a las {time}. Motivo: {reason}",
		},
		KindEmergencyCreated: {
			title: "Nueva emergencia",
			body:  "{name} reporta una emergencia: {description}. Teléfono de contacto: {phone}.",
		},
		KindEmergencyClaimed: {
			title: "Emergencia en atención",
			body:  "{dentist} tomó tu solicitud de emergencia.",
		},
		KindEmergencyCancelled: {
			title: "Emergencia cancelada",
			body:  "La solicitud de emergencia de {name} fue cancelada.",
		},
		KindEmergencyFinished: {
			title: "Emergencia finalizada",
			body:  "{dentist} marcó tu emergencia como finalizada.",
		},
	},
	"en": {
		KindAppointmentRequested: {
			title: "New appointment request",
			body:  "{patient} requested a {service} appointment on {date} at {time}.",
		},
		KindAppointmentApproved: {
			title: "Appointment confirmed",
			body:  "{dentist} confirmed your appointment on {date} at {time}.",
		},
		KindAppointmentCancelled: {
			title: "Appointment cancelled",
			body:  "{dentist} cancelled your appointment on {date} at {time}. Reason: {reason}",
		},
		KindEmergencyCreated: {
			title: "New emergency",
			body:  "{name} reported an emergency: {description}. Contact phone: {phone}.",
		},
		KindEmergencyClaimed: {
			title: "Emergency being handled",
			body:  "{dentist} took your emergency request.",
		},
		KindEmergencyCancelled: {
			title: "Emergency cancelled",
			body:  "The emergency request from {name} was cancelled.",
		},
		KindEmergencyFinished: {
			title: "Emergency finished",
			body:  "{dentist} marked your emergency as finished.",
		},
	},
}

// placeholderDefaults cover interpolation values the caller could not resolve,
// so a broken profile read never leaks "{dentist}" to a user.
var placeholderDefaults = map[string]map[string]string{
	"es": {
		"dentist": "Dentista",
		"patient": "Paciente",
		"name":    "Paciente",
	},
	"en": {
		"dentist": "Dentist",
		"patient": "Patient",
		"name":    "Patient",
	},
}

// Compose renders the title and body for an event in the given locale,
// falling back to the default locale for unknown locales or missing keys.
func Compose(locale string, kind Kind, params map[string]string) (title, body string) {
	msgs, ok := catalog[locale]
	if !ok {
		locale = defaultLocale
		msgs = catalog[defaultLocale]
	}
	m, ok := msgs[kind]
	if !ok {
		m, ok = catalog[defaultLocale][kind]
		if !ok {
			return string(kind), ""
		}
	}
	return interpolate(m.title, locale, params), interpolate(m.body, locale, params)
}

func interpolate(tpl, locale string, params map[string]string) string {
	out := tpl
	for k, v := range params {
		if v == "" {
			continue
		}
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	for k, v := range placeholderDefaults[locale] {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	// Anything still unresolved renders empty rather than as a raw token.
	for {
		open := strings.Index(out, "{")
		if open < 0 {
			break
		}
		end := strings.Index(out[open:], "}")
		if end < 0 {
			break
		}
		out = out[:open] + out[open+end+1:]
	}
	return strings.Join(strings.Fields(out), " ")
}
