package orchestrator

import "github.com/abarwater/aqua-router/domain/conversation"

// canned reply text ported from
// original_source/utils/language_utils.py::get_default_responses — kept
// as business copy, not translated freely, since customers expect this
// exact wording.
var cannedReplies = map[conversation.Language]map[conversation.Intent]string{
	conversation.LanguageArabic: {
		conversation.IntentGreeting: "وعليكم السلام ورحمة الله وبركاته، أهلاً وسهلاً بك! 🌟\n\nأنا مساعدك الذكي في شركة أبار لتوصيل المياه في السعودية. يمكنني مساعدتك في:\n\n💧 طلب توصيل المياه\n🏙️ معرفة المدن المتاحة\n🏷️ الاستفسار عن العلامات التجارية والأسعار\n📞 تقديم الشكاوى والاقتراحات\n\nكيف يمكنني مساعدتك اليوم؟",
		conversation.IntentThanking:   "عفواً! 😊",
		conversation.IntentComplaint:  "شكراً لتواصلك معنا بخصوص هذه الشكوى. نحن نقدر ملاحظاتك ونأخذها على محمل الجد. سيتم توجيه شكواك إلى الفريق المختص للمراجعة والمتابعة معك في أقرب وقت.",
		conversation.IntentSuggestion: "شكراً لك على هذا الاقتراح القيم! نحن نقدر آراء عملائنا ونسعى دائماً للتحسين. سيتم مراجعة اقتراحك من قبل الفريق المختص.",
	},
	conversation.LanguageEnglish: {
		conversation.IntentGreeting: "Hello and welcome! 🌟\n\nI am your smart assistant at Abar Water Delivery Company in Saudi Arabia. I can help you with:\n\n💧 Water delivery orders\n🏙️ Available cities information\n🏷️ Brands and pricing inquiries\n📞 Complaints and suggestions\n\nHow can I help you today?",
		conversation.IntentThanking:   "You're welcome! 😊",
		conversation.IntentComplaint:  "Thank you for contacting us regarding this complaint. We appreciate your feedback and take it seriously. Your complaint will be forwarded to the relevant team for review and follow-up.",
		conversation.IntentSuggestion: "Thank you for this valuable suggestion! We appreciate our customers' feedback and always strive for improvement. Your suggestion will be reviewed by the relevant team.",
	},
}

func cannedReply(lang conversation.Language, intent conversation.Intent) (string, bool) {
	byLang, ok := cannedReplies[lang]
	if !ok {
		byLang = cannedReplies[conversation.LanguageArabic]
	}
	text, ok := byLang[intent]
	return text, ok
}
