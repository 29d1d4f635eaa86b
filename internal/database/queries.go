package database

const (
	// Opportunity queries
	queryInsertOpportunity = `
		INSERT INTO opportunities (id, name, type, currency, target_amount, current_amount,
			minimum_ticket, maximum_ticket, accredited_only, status, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`

	queryGetOpportunity = `
		SELECT id, name, type, currency, target_amount, current_amount,
		       minimum_ticket, maximum_ticket, accredited_only, status, version, created_at, updated_at
		FROM opportunities
		WHERE id = ?`

	queryUpdateOpportunityFunding = `
		UPDATE opportunities
		SET current_amount = ?, status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`

	// Wallet queries
	queryGetWallet = `
		SELECT id, user_id, currency, available, locked, version, updated_at
		FROM wallets
		WHERE user_id = ? AND currency = ?`

	queryInsertWallet = `
		INSERT INTO wallets (id, user_id, currency, available, locked, version)
		VALUES (?, ?, ?, '0', '0', 1)`

	queryListWallets = `
		SELECT id, user_id, currency, available, locked, version, updated_at
		FROM wallets
		WHERE user_id = ?
		ORDER BY currency`

	queryUpdateWalletBalances = `
		UPDATE wallets
		SET available = ?, locked = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND currency = ? AND version = ?`

	// Investment queries
	queryInsertInvestment = `
		INSERT INTO investments (id, investor_id, opportunity_id, amount, currency,
			equity_percent, interest_rate, term_months, revenue_share_percent,
			status, payment_transaction_id, risk_snapshot_id, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetInvestment = `
		SELECT id, investor_id, opportunity_id, amount, currency,
		       equity_percent, interest_rate, term_months, revenue_share_percent,
		       status, payment_transaction_id, risk_snapshot_id, expires_at, created_at, updated_at
		FROM investments
		WHERE id = ?`

	queryUpdateInvestmentStatus = `
		UPDATE investments
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`

	queryLinkInvestmentPayment = `
		UPDATE investments
		SET payment_transaction_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryListExpiredPending = `
		SELECT id, investor_id, opportunity_id, amount, currency,
		       equity_percent, interest_rate, term_months, revenue_share_percent,
		       status, payment_transaction_id, risk_snapshot_id, expires_at, created_at, updated_at
		FROM investments
		WHERE status IN ('pending', 'processing') AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at
		LIMIT ?`

	// Payment transaction queries
	queryInsertPayment = `
		INSERT INTO payment_transactions (id, investment_id, processor, intent_id, status,
			amount, currency, platform_fee, processor_fee, net_amount, fee_version,
			idempotency_key, sequence, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPayment = `
		SELECT id, investment_id, processor, intent_id, status, amount, currency,
		       platform_fee, processor_fee, net_amount, fee_version,
		       idempotency_key, sequence, expires_at, created_at, updated_at
		FROM payment_transactions
		WHERE id = ?`

	queryGetPaymentByInvestment = `
		SELECT id, investment_id, processor, intent_id, status, amount, currency,
		       platform_fee, processor_fee, net_amount, fee_version,
		       idempotency_key, sequence, expires_at, created_at, updated_at
		FROM payment_transactions
		WHERE investment_id = ?`

	queryGetPaymentByIntent = `
		SELECT id, investment_id, processor, intent_id, status, amount, currency,
		       platform_fee, processor_fee, net_amount, fee_version,
		       idempotency_key, sequence, expires_at, created_at, updated_at
		FROM payment_transactions
		WHERE intent_id = ?`

	queryUpdatePaymentStatus = `
		UPDATE payment_transactions
		SET status = ?, sequence = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND sequence < ?`

	// Risk snapshot queries
	queryInsertSnapshot = `
		INSERT INTO risk_snapshots (id, investor_id, opportunity_id, amount, level, score, flags, manual_review)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetSnapshot = `
		SELECT id, investor_id, opportunity_id, amount, level, score, flags, manual_review, created_at
		FROM risk_snapshots
		WHERE id = ?`

	// Processed event queries
	queryInsertProcessedEvent = `
		INSERT INTO processed_events (event_id, investment_id, canonical_status, sequence, outcome)
		VALUES (?, ?, ?, ?, ?)`

	queryGetProcessedEvent = `
		SELECT event_id, investment_id, canonical_status, sequence, outcome, processed_at
		FROM processed_events
		WHERE event_id = ?`

	// Portfolio queries
	queryGetPortfolioRow = `
		SELECT id, total_invested, active_investments
		FROM investor_portfolios
		WHERE investor_id = ? AND currency = ?`

	queryInsertPortfolioRow = `
		INSERT INTO investor_portfolios (id, investor_id, currency, total_invested, active_investments)
		VALUES (?, ?, ?, ?, ?)`

	queryUpdatePortfolioRow = `
		UPDATE investor_portfolios
		SET total_invested = ?, active_investments = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryGetPortfolio = `
		SELECT investor_id, currency, total_invested, active_investments, updated_at
		FROM investor_portfolios
		WHERE investor_id = ?
		ORDER BY currency`

	// Activity queries
	queryCheckActivityRef = `
		SELECT id FROM activity_log WHERE ref = ? LIMIT 1`

	queryInsertActivity = `
		INSERT INTO activity_log (id, actor, action, entity_type, entity_id, ref, before, after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryListActivity = `
		SELECT id, actor, action, entity_type, entity_id, COALESCE(ref, ''), before, after, created_at
		FROM activity_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC
		LIMIT ?`
)
