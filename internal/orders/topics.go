package orders

const (
	TopicOrderSubmitted = "round.order.submitted"
	TopicOrderRevised   = "round.order.revised"
	TopicPaymentUpdated = "round.payment.updated"
)

// AuditTopics are consumed by the auditor.
var AuditTopics = []string{TopicOrderSubmitted, TopicOrderRevised, TopicPaymentUpdated}

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
