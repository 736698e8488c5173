package repos

import (
	"log"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	// Seed baseline data if DB is empty (codes/products)
	if err := seedIfEmpty(db); err != nil {
		return nil, err
	}
	// Ensure accounts exist (idempotent; safe to run every start)
	if err := seedUsers(db); err != nil {
		return nil, err
	}

	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;

-- Monotonic per-collection id generator
CREATE TABLE IF NOT EXISTS sequences(
  name TEXT PRIMARY KEY,
  value INTEGER NOT NULL DEFAULT 0
);

-- Accounts
CREATE TABLE IF NOT EXISTS users(
  id INTEGER PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  type TEXT NOT NULL CHECK (type IN ('user','seller','admin')),
  membership_class TEXT,
  created_at TEXT,
  updated_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email));

-- Code tables (flat enumerations and category trees)
CREATE TABLE IF NOT EXISTS codes(
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  created_at TEXT,
  updated_at TEXT
);

CREATE TABLE IF NOT EXISTS code_entries(
  code TEXT PRIMARY KEY,  -- unique across every code table
  code_id TEXT NOT NULL REFERENCES codes(id) ON DELETE CASCADE,
  sort INTEGER NOT NULL DEFAULT 0,
  value TEXT NOT NULL,
  parent TEXT NOT NULL DEFAULT '',
  depth INTEGER NOT NULL DEFAULT 0,
  extra_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_code_entries_group ON code_entries(code_id);

-- Products
CREATE TABLE IF NOT EXISTS products(
  id INTEGER PRIMARY KEY,
  seller_id INTEGER NOT NULL,
  name TEXT NOT NULL,
  price INTEGER NOT NULL CHECK (price >= 0),
  shipping_fees INTEGER NOT NULL DEFAULT 0,
  quantity INTEGER NOT NULL DEFAULT 0,
  buy_quantity INTEGER NOT NULL DEFAULT 0
    CHECK (buy_quantity >= 0 AND buy_quantity <= quantity),
  main_image TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  show INTEGER NOT NULL DEFAULT 1,
  extra_json TEXT,
  created_at TEXT,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_products_seller ON products(seller_id);

-- Carts (one line per user+product; adds merge by quantity)
CREATE TABLE IF NOT EXISTS carts(
  id INTEGER PRIMARY KEY,
  user_id INTEGER NOT NULL,
  product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  product_name TEXT NOT NULL,
  product_price INTEGER NOT NULL,
  product_image TEXT,
  created_at TEXT,
  updated_at TEXT,
  UNIQUE(user_id, product_id)
);
CREATE INDEX IF NOT EXISTS idx_carts_user ON carts(user_id);

-- Orders
CREATE TABLE IF NOT EXISTS orders(
  id INTEGER PRIMARY KEY,
  external_id TEXT UNIQUE,
  user_id INTEGER NOT NULL,
  state TEXT NOT NULL,
  address_json TEXT,
  cost_json TEXT,
  delivery_json TEXT,
  created_at TEXT,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

-- Line membership is fixed at creation; only state/delivery/reply_id mutate.
CREATE TABLE IF NOT EXISTS order_lines(
  order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  product_id INTEGER NOT NULL,
  seller_id INTEGER NOT NULL,
  name TEXT NOT NULL,
  image TEXT,
  quantity INTEGER NOT NULL,
  price INTEGER NOT NULL,
  state TEXT NOT NULL,
  delivery_json TEXT,
  reply_id INTEGER,
  extra_json TEXT,
  PRIMARY KEY(order_id, product_id)
);
CREATE INDEX IF NOT EXISTS idx_order_lines_seller ON order_lines(seller_id);

-- Append-only audit trail; product_id NULL marks order-level entries.
CREATE TABLE IF NOT EXISTS order_history(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  product_id INTEGER,
  actor INTEGER NOT NULL,
  updated_json TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_history_order ON order_history(order_id);
`
	_, err := db.Exec(schema)
	return err
}

func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM codes`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log.Println("[seed] inserting baseline codes/products")

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	tx.MustExec(`INSERT INTO codes(id,title) VALUES
	  ('orderState','Order states'),
	  ('membershipClass','Membership classes'),
	  ('productCategory','Product categories')`)

	tx.MustExec(`INSERT INTO code_entries(code,code_id,sort,value,parent,depth,extra_json) VALUES
	  ('OS010','orderState',1,'order placed','',0,NULL),
	  ('OS020','orderState',2,'payment completed','',0,NULL),
	  ('OS030','orderState',3,'preparing shipment','',0,NULL),
	  ('OS035','orderState',4,'shipping','',0,NULL),
	  ('OS040','orderState',5,'delivered','',0,NULL),
	  ('OS110','orderState',6,'return requested','',0,NULL),
	  ('OS120','orderState',7,'return in progress','',0,NULL),
	  ('OS130','orderState',8,'refund completed','',0,NULL),
	  ('OS310','orderState',9,'purchase confirmed','',0,NULL),

	  ('MC01','membershipClass',1,'bronze','',0,'{"discountRate":0}'),
	  ('MC02','membershipClass',2,'silver','',0,'{"discountRate":5}'),
	  ('MC03','membershipClass',3,'gold','',0,'{"discountRate":10}'),

	  ('PC01','productCategory',1,'Living','',1,NULL),
	  ('PC0101','productCategory',1,'Kitchen','PC01',2,NULL),
	  ('PC0102','productCategory',2,'Decor','PC01',2,NULL),
	  ('PC010201','productCategory',1,'Posters','PC0102',3,NULL),
	  ('PC02','productCategory',2,'Hobby','',1,NULL),
	  ('PC0201','productCategory',1,'Board Games','PC02',2,NULL)`)

	tx.MustExec(`INSERT INTO products(id,seller_id,name,price,shipping_fees,quantity,buy_quantity,main_image,extra_json,created_at,updated_at) VALUES
	  (1,102,'Vintage Film Camera',45000,2500,99,0,'files/camera.jpg','{"category":"PC0102"}','2025.01.02 10:00:00','2025.01.02 10:00:00'),
	  (2,102,'Leather Notebook',18000,2500,30,2,'files/notebook.jpg','{"category":"PC0102"}','2025.01.03 10:00:00','2025.01.03 10:00:00'),
	  (3,103,'Mechanical Keyboard',96000,3000,10,9,'files/keyboard.jpg','{"category":"PC02"}','2025.01.04 10:00:00','2025.01.04 10:00:00'),
	  (4,103,'Walnut Chess Set',45000,3000,20,0,'files/chess.jpg','{"category":"PC0201"}','2025.01.05 10:00:00','2025.01.05 10:00:00'),
	  (5,103,'Wool Scarf',32000,2500,50,0,'files/scarf.jpg','{"category":"PC01","depth":1}','2025.01.06 10:00:00','2025.01.06 10:00:00'),
	  (6,103,'Wool Scarf - Charcoal',32000,2500,25,0,'files/scarf-charcoal.jpg','{"category":"PC01","depth":2,"parent":5}','2025.01.06 10:00:00','2025.01.06 10:00:00')`)

	// Keep generated ids above the seeded rows.
	tx.MustExec(`INSERT INTO sequences(name,value) VALUES ('product',6),('cart',0),('order',0)
	  ON CONFLICT(name) DO NOTHING`)

	return tx.Commit()
}

// seedUsers ensures a buyer, two sellers and an admin exist (idempotent).
func seedUsers(db *sqlx.DB) error {
	type u struct {
		ID    int64
		Email string
		Name  string
		Type  string
		Class string
		Hash  string
	}
	mk := func(id int64, email, name, typ, class, raw string) u {
		h, _ := bcrypt.GenerateFromPassword([]byte(raw), 12)
		return u{ID: id, Email: email, Name: name, Type: typ, Class: class, Hash: string(h)}
	}

	users := []u{
		mk(101, "alice@market.test", "Alice", "user", "MC02", "Passw0rd!"),
		mk(102, "bruno@market.test", "Bruno", "seller", "MC01", "Passw0rd!"),
		mk(103, "carol@market.test", "Carol", "seller", "MC01", "Passw0rd!"),
		mk(104, "admin@market.test", "Admin", "admin", "MC01", "Passw0rd!"),
	}

	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	for _, x := range users {
		if _, err := tx.Exec(`
			INSERT INTO users(id,email,name,password_hash,type,membership_class)
			VALUES(?,?,?,?,?,?)
			ON CONFLICT(email) DO NOTHING
		`, x.ID, x.Email, x.Name, x.Hash, x.Type, x.Class); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO sequences(name,value) VALUES ('user',104)
		ON CONFLICT(name) DO NOTHING`); err != nil {
		return err
	}

	return tx.Commit()
}
