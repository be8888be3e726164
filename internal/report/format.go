package report

import (
	"fmt"
	"strings"

	"github.com/autoclaim/autoclaim/internal/catalog"
	"github.com/autoclaim/autoclaim/internal/models"
)

const (
	messageDays        = 3
	messageTitlesDay   = 3
	messageTitleRunes  = 30
	calendarListedDays = 10
	timestampLayout    = "2006-01-02 15:04:05"
)

var bucketHeadings = map[catalog.BucketLabel]string{
	catalog.BucketUnder10: "💵 *超值优惠 (<10元)*",
	catalog.Bucket10To20:  "💰 *实惠套餐 (10-20元)*",
	catalog.BucketFrom20:  "🌟 *豪华组合 (≥20元)*",
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// escape protects vendor text from Telegram's legacy Markdown parser.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}

// Message renders the run summary as Telegram Markdown.
func Message(r RunReport) string {
	var b strings.Builder

	b.WriteString("🍔 *优惠券自动领取报告*\n")
	fmt.Fprintf(&b, "⏰ `%s`\n\n", r.GeneratedAt.Format(timestampLayout))

	b.WriteString("📊 *数据概览*\n")
	fmt.Fprintf(&b, "• 本月活动: %d 个\n", r.TotalActivities)
	fmt.Fprintf(&b, "• 可用优惠券: %d 张\n", r.Catalog.TotalAvailable)
	if c := r.Claims; c != nil {
		if c.Due() == 0 {
			b.WriteString("• 今日暂无可领取的活动\n")
		} else {
			fmt.Fprintf(&b, "• 新领取: %d 张\n", c.Claimed)
		}
		if c.Failed > 0 {
			fmt.Fprintf(&b, "• 领取失败: %d 个\n", c.Failed)
		}
	}
	b.WriteString("\n")

	if upcoming := r.Upcoming(); len(upcoming) > 0 {
		b.WriteString("📅 *近期活动*\n")
		for _, day := range upcoming[:min(messageDays, len(upcoming))] {
			fmt.Fprintf(&b, "\n*%s* (%d个)\n", day.Date, len(day.Activities))
			for _, a := range day.Activities[:min(messageTitlesDay, len(day.Activities))] {
				fmt.Fprintf(&b, "  • %s%s\n", escape(shorten(a.Title, messageTitleRunes)), statusMark(a.ClaimStatus))
			}
			if extra := len(day.Activities) - messageTitlesDay; extra > 0 {
				fmt.Fprintf(&b, "  • ...还有%d个\n", extra)
			}
		}
		if extra := len(upcoming) - messageDays; extra > 0 {
			fmt.Fprintf(&b, "\n📌 还有%d天有活动\n", extra)
		}
		b.WriteString("\n")
	}

	if r.Catalog.TotalAvailable == 0 {
		b.WriteString("🎟️ 暂无可用优惠券\n")
	} else {
		fmt.Fprintf(&b, "🎟️ *我的优惠券* (%d张)\n", r.Catalog.TotalAvailable)
		for _, bucket := range r.Catalog.Buckets {
			if len(bucket.Coupons) == 0 {
				continue
			}
			fmt.Fprintf(&b, "\n%s\n", bucketHeadings[bucket.Label])
			for _, c := range bucket.Coupons {
				fmt.Fprintf(&b, "• ¥%s %s (%s)\n", c.Price.StringFixed(1), escape(c.Title), ShortValidity(c))
			}
		}
	}

	if r.PagesURL != "" {
		fmt.Fprintf(&b, "\n🔗 [查看详情](%s)\n", r.PagesURL)
	}
	return b.String()
}

// CalendarUpdated renders the notice sent after a monthly refresh.
func CalendarUpdated(r RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📅 *%s 活动日历已更新*\n\n", r.Period)
	fmt.Fprintf(&b, "• 活动天数: %d 天\n", len(r.Days))
	fmt.Fprintf(&b, "• 总活动数: %d 个\n", r.TotalActivities)
	if rf := r.Refresh; rf != nil && rf.Inserted > 0 {
		fmt.Fprintf(&b, "• 新增活动: %d 个\n", rf.Inserted)
	}

	if len(r.Days) > 0 {
		b.WriteString("\n*活动日期:*\n")
		for _, day := range r.Days[:min(calendarListedDays, len(r.Days))] {
			fmt.Fprintf(&b, "• %s (%d个活动)\n", day.Date, len(day.Activities))
		}
		if extra := len(r.Days) - calendarListedDays; extra > 0 {
			fmt.Fprintf(&b, "• ...还有%d天\n", extra)
		}
	}

	if r.PagesURL != "" {
		fmt.Fprintf(&b, "\n🔗 [查看详情](%s)", r.PagesURL)
	}
	return b.String()
}

// Alert renders an operator-facing failure notice.
func Alert(mode string, err error) string {
	return fmt.Sprintf("⚠️ *自动领券运行失败*\n模式: %s\n错误: %s", escape(mode), escape(err.Error()))
}

// ShortValidity formats a coupon's range as "MM-DD 至 MM-DD".
func ShortValidity(c models.Coupon) string {
	if len(c.ValidFrom) != len(models.DateLayout) || len(c.ValidTo) != len(models.DateLayout) {
		return "有效期未知"
	}
	return c.ValidFrom[5:] + " 至 " + c.ValidTo[5:]
}

func statusMark(s models.ClaimStatus) string {
	switch s {
	case models.ClaimStatusClaimed:
		return " ✅"
	case models.ClaimStatusFailed:
		return " ❌"
	case models.ClaimStatusSkipped:
		return " ⏭"
	default:
		return ""
	}
}

func shorten(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
