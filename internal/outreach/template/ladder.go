package template

// Message is a subject/body pair before rendering.
type Message struct {
	Subject string
	Body    string
}

// ladder is used when a workflow has no approved template for a step. It
// grows firmer with each step; steps past the end reuse the last rung.
var ladder = []Message{
	{
		Subject: "Friendly reminder: invoice {{invoice_number}}",
		Body: `Hi {{customer_name}},

This is a friendly reminder that invoice {{invoice_number}} for {{amount}} was due on {{due_date}}.
You can pay online here: {{payment_link}}
View the invoice: {{invoice_link}}

Thank you,
{{company_name}}`,
	},
	{
		Subject: "Following up on invoice {{invoice_number}}",
		Body: `Hi {{customer_name}},

We have not yet received payment for invoice {{invoice_number}} ({{amount}}), now {{days_past_due}} days past due.
If payment is already on its way, please ignore this message. Otherwise you can pay here: {{payment_link}}

Thanks,
{{company_name}}`,
	},
	{
		Subject: "Invoice {{invoice_number}} is {{days_past_due}} days past due",
		Body: `Hello {{customer_name}},

Invoice {{invoice_number}} for {{amount}} remains unpaid {{days_past_due}} days after its due date of {{due_date}}.
Please arrange payment or reply to let us know when we can expect it.
Pay online: {{payment_link}}
Account details: {{ar_page_url}}

Regards,
{{company_name}}`,
	},
	{
		Subject: "Urgent: payment required for invoice {{invoice_number}}",
		Body: `Hello {{customer_name}},

Invoice {{invoice_number}} ({{amount}}) is now {{days_past_due}} days overdue. Please settle the balance promptly.
Pay online: {{payment_link}}
If there is a problem with this invoice, reply so we can resolve it.

{{company_name}}`,
	},
	{
		Subject: "Final notice: invoice {{invoice_number}}",
		Body: `Hello {{customer_name}},

This is our final notice regarding invoice {{invoice_number}} for {{amount}}, due on {{due_date}}.
Please pay immediately or contact us to discuss a payment plan: {{ar_page_url}}
Pay online: {{payment_link}}

{{company_name}}`,
	},
}

// Fallback returns the generic message for a 1-based step.
func Fallback(step int) Message {
	switch {
	case step < 1:
		return ladder[0]
	case step > len(ladder):
		return ladder[len(ladder)-1]
	default:
		return ladder[step-1]
	}
}
