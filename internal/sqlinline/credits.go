package sqlinline

// QDebitCredits debits the owner's balance and writes the ledger entry in one
// statement. The balance guard in the update makes an overdraft impossible;
// zero returned rows means insufficient credits.
const QDebitCredits = `--sql 6a0d93f1-48e7-4b2c-95d6-c17f82e3a0b9
with debit as (
    update users
    set credit_balance = credit_balance - $2::int, updated_at = now()
    where id = $1::uuid and credit_balance >= $2::int
    returning id, credit_balance
),
entry as (
    insert into credit_ledger(id, user_id, amount, reason, created_at)
    select gen_random_uuid(), id, -$2::int, $3::text, now()
    from debit
)
select credit_balance from debit;
`

const QGetCreditBalance = `--sql 12e7b4c8-90af-4d63-81b5-f4a2c86e07d3
select credit_balance from users where id = $1::uuid;
`
