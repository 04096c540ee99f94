package i18n

import "fmt"

// message holds the English and Arabic renderings of one user-visible string.
type message struct {
	en string
	ar string
}

var catalog = map[string]message{
	"reservation_successful": {
		en: "Reservation confirmed for %s at %s.",
		ar: "تم تأكيد الحجز بتاريخ %s الساعة %s.",
	},
	"reservation_modified": {
		en: "Your reservation was moved to %s at %s.",
		ar: "تم نقل حجزك إلى %s الساعة %s.",
	},
	"reservation_cancelled": {
		en: "Your reservation was cancelled.",
		ar: "تم إلغاء حجزك.",
	},
	"reservation_reinstated": {
		en: "Your reservation was restored.",
		ar: "تمت استعادة حجزك.",
	},
	"slot_fully_booked": {
		en: "This time slot is fully booked. Please choose another time.",
		ar: "هذا الموعد ممتلئ بالكامل. الرجاء اختيار وقت آخر.",
	},
	"no_slots_available": {
		en: "No available time slots on %s.",
		ar: "لا توجد مواعيد متاحة بتاريخ %s.",
	},
	"invalid_phone": {
		en: "The phone number is invalid.",
		ar: "رقم الهاتف غير صحيح.",
	},
	"invalid_name": {
		en: "A customer name is required.",
		ar: "اسم العميل مطلوب.",
	},
	"invalid_type": {
		en: "The reservation type is invalid.",
		ar: "نوع الحجز غير صحيح.",
	},
	"invalid_date": {
		en: "The date %q could not be understood.",
		ar: "تعذر فهم التاريخ %q.",
	},
	"invalid_time": {
		en: "The time %q could not be understood.",
		ar: "تعذر فهم الوقت %q.",
	},
	"past_date": {
		en: "The requested time is in the past.",
		ar: "الوقت المطلوب قد مضى.",
	},
	"outside_working_hours": {
		en: "The clinic is closed at that time.",
		ar: "العيادة مغلقة في هذا الوقت.",
	},
	"vacation_closed": {
		en: "The clinic is closed from %s to %s.",
		ar: "العيادة مغلقة من %s إلى %s.",
	},
	"no_future_reservations": {
		en: "You have no upcoming reservations.",
		ar: "ليس لديك حجوزات قادمة.",
	},
	"multiple_future_reservations": {
		en: "You have more than one upcoming reservation; please specify which one.",
		ar: "لديك أكثر من حجز قادم؛ الرجاء تحديد الحجز المقصود.",
	},
	"reservation_not_found": {
		en: "The reservation could not be found.",
		ar: "تعذر العثور على الحجز.",
	},
	"reservation_already_cancelled": {
		en: "The reservation is already cancelled.",
		ar: "الحجز ملغى بالفعل.",
	},
	"reservation_already_active": {
		en: "The reservation is already active.",
		ar: "الحجز نشط بالفعل.",
	},
	"nothing_to_modify": {
		en: "Nothing to change; provide at least one new field.",
		ar: "لا يوجد ما يتم تعديله؛ الرجاء تقديم حقل جديد واحد على الأقل.",
	},
	"cannot_cancel_past": {
		en: "Past reservations cannot be cancelled.",
		ar: "لا يمكن إلغاء الحجوزات السابقة.",
	},
	"appointment_reminder": {
		en: "Reminder: you have an appointment tomorrow at %s.",
		ar: "تذكير: لديك موعد غدًا الساعة %s.",
	},
	"customer_renamed": {
		en: "Name updated to %s.",
		ar: "تم تحديث الاسم إلى %s.",
	},
}

// Get renders the message for key with positional substitutions.
// Unknown keys render the key itself so a missing translation never crashes
// a conversation.
func Get(key string, arabic bool, args ...any) string {
	m, ok := catalog[key]
	if !ok {
		return key
	}
	format := m.en
	if arabic {
		format = m.ar
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Has reports whether key exists in the catalog.
func Has(key string) bool {
	_, ok := catalog[key]
	return ok
}
