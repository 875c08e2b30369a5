package hitl

import "strings"

// ApprovalVerdict 审批回复的分类结果，同时用作返回字符串的前缀.
type ApprovalVerdict string

const (
	VerdictApproved     ApprovalVerdict = "APPROVED"
	VerdictRejected     ApprovalVerdict = "REJECTED"
	VerdictInstructions ApprovalVerdict = "USER_INSTRUCTIONS"
)

// ApprovalClassifier 把审批请求的自由文本回复归类.
type ApprovalClassifier interface {
	Classify(response string) ApprovalVerdict
}

// ApprovalClassifierFunc 函数适配器.
type ApprovalClassifierFunc func(response string) ApprovalVerdict

func (f ApprovalClassifierFunc) Classify(response string) ApprovalVerdict {
	return f(response)
}

// KeywordClassifier 基于关键字的子串匹配（不区分大小写）。
// 先检查 Approve 关键字，再检查 Reject 关键字，都不命中时视为用户指示。
//
// 子串匹配较脆弱："yes, but not now" 会被判为 APPROVED，"know" 会命中 "no"。
type KeywordClassifier struct {
	Approve []string
	Reject  []string
}

// DefaultKeywordClassifier 返回 approve/yes 与 reject/no 的关键字分类器.
func DefaultKeywordClassifier() KeywordClassifier {
	return KeywordClassifier{
		Approve: []string{"approve", "yes"},
		Reject:  []string{"reject", "no"},
	}
}

func (k KeywordClassifier) Classify(response string) ApprovalVerdict {
	lower := strings.ToLower(response)
	if containsAny(lower, k.Approve) {
		return VerdictApproved
	}
	if containsAny(lower, k.Reject) {
		return VerdictRejected
	}
	return VerdictInstructions
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
