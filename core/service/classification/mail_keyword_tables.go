package classification

import "maildigest/core/domain"

// =============================================================================
// Keyword Fallback Tables
// =============================================================================

// highImportanceKeywords raise importance to 3.
var highImportanceKeywords = []string{
	"urgent", "紧急", "重要", "important", "急", "立即", "asap",
	"截止", "deadline", "会议", "meeting", "面试", "interview",
}

// mediumImportanceKeywords raise importance to 2.
var mediumImportanceKeywords = []string{
	"通知", "notice", "公告", "announcement", "更新", "update",
	"邀请", "invitation", "确认", "confirmation",
}

// categoryOrder fixes the probe order of the keyword fallback; the first
// category whose set hits the scratch text wins.
var categoryOrder = []string{
	domain.CategoryWork,
	domain.CategoryFinance,
	domain.CategorySocial,
	domain.CategoryShopping,
	domain.CategoryNews,
	domain.CategoryEducation,
	domain.CategoryTravel,
	domain.CategoryHealth,
	domain.CategorySystem,
	domain.CategoryAdvertising,
	domain.CategorySpam,
}

var categoryKeywords = map[string][]string{
	domain.CategoryWork: {
		"工作", "work", "项目", "project", "任务", "task",
		"会议", "meeting", "报告", "report",
	},
	domain.CategoryFinance: {
		"账单", "bill", "付款", "payment", "银行", "bank",
		"财务", "finance", "发票", "invoice",
	},
	domain.CategorySocial: {
		"朋友", "friend", "社交", "social", "聚会", "party", "生日", "birthday",
	},
	domain.CategoryShopping: {
		"订单", "order", "购买", "purchase", "商品", "product",
		"快递", "delivery", "物流", "shipping",
	},
	domain.CategoryNews: {
		"新闻", "news", "资讯", "information", "更新", "update", "订阅", "newsletter",
	},
	domain.CategoryEducation: {
		"课程", "course", "培训", "training", "学习", "study",
		"教育", "education", "考试", "exam",
	},
	domain.CategoryTravel: {
		"机票", "flight", "酒店", "hotel", "旅行", "travel",
		"行程", "itinerary", "签证", "visa",
	},
	domain.CategoryHealth: {
		"医院", "hospital", "体检", "checkup", "健康", "health",
		"医疗", "medical", "药品", "medicine",
	},
	domain.CategorySystem: {
		"验证码", "code", "密码", "password", "账号", "account",
		"注册", "register", "通知", "notification",
	},
	domain.CategoryAdvertising: {
		"广告", "ad", "推广", "promotion", "营销", "marketing", "促销",
		"优惠", "discount", "折扣", "sale", "特价", "限时", "秒杀",
		"活动", "campaign", "offer", "deal",
	},
	domain.CategorySpam: {
		"中奖", "prize", "恭喜", "congratulations", "免费领取", "free gift",
		"点击领取", "click here", "立即查看", "view now", "紧急", "urgent",
		"重要通知", "账号异常", "验证身份", "verify account", "suspended",
		"unusual activity",
	},
}
