package storage

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		first_name VARCHAR(100) NOT NULL,
		last_name VARCHAR(100) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(200) NOT NULL,
		price BIGINT NOT NULL DEFAULT 0,
		number_in_inventory INT NOT NULL,
		version INT NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		item_count INT NOT NULL,
		date_of_transaction DATETIME(6) NOT NULL,
		INDEX idx_transactions_customer (customer_id),
		CONSTRAINT fk_transactions_customer FOREIGN KEY (customer_id) REFERENCES customers (id),
		CONSTRAINT fk_transactions_product FOREIGN KEY (product_id) REFERENCES products (id)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id BIGSERIAL PRIMARY KEY,
		first_name VARCHAR(100) NOT NULL,
		last_name VARCHAR(100) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(200) NOT NULL,
		price BIGINT NOT NULL DEFAULT 0,
		number_in_inventory INT NOT NULL,
		version INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		customer_id BIGINT NOT NULL REFERENCES customers (id),
		product_id BIGINT NOT NULL REFERENCES products (id),
		item_count INT NOT NULL,
		date_of_transaction TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions (customer_id)`,
}

func (d Dialect) schema() []string {
	if d == DialectPostgres {
		return postgresSchema
	}
	return mysqlSchema
}
